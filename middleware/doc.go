// Package middleware provides reusable workflow steps composable into any
// agent graph: conversation summarization, model/tool call-count limits, and
// a retry wrapper for flaky tool calls.
package middleware
