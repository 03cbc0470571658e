// Package types provides the core types shared across the agentchain engine.
// This package has ZERO dependencies on other agentchain packages to avoid
// circular imports. All other packages should import types from here.
package types
