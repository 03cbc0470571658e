// Package hitl implements the human-in-the-loop permission flow: surfacing a
// suspended workflow's permission request and turning the user's free-text
// reply into a resume or a terminal denial.
package hitl
