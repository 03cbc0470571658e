// Package checkpoint persists conversation state snapshots keyed by thread
// id, enabling workflow resumption after an interrupt or a process restart.
//
// A thread's checkpoint is read at the start of every invocation and written
// after every node transition. Writes for one thread are assumed serialized
// by the caller; each backend guarantees an individual write is atomic, so a
// crash between read and write never leaves a half-updated snapshot.
package checkpoint
