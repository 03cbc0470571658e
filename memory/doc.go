// Package memory implements the cross-agent shared memory for one
// conversation. Agents use it to avoid duplicate searches and computation:
// whichever agent runs first records its findings, later agents in the same
// conversation read them instead of repeating the work.
//
// Execution within one conversation thread is sequential, so values need no
// locking of their own; the store-level mutex only guards the conversation
// map against concurrent conversations.
package memory
