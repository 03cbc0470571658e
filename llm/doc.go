// Package llm defines the model-provider contract used by agent nodes and
// middleware. Providers adapt a single upstream API to the Completion call;
// wrappers add rate limiting without the callers knowing.
package llm
