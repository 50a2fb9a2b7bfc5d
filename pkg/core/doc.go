// Package core defines the shared language of the LeapNB notebook runtime.
//
// This package contains:
//   - Execution contract values (ExecutionRequest, Chunk, Language)
//   - Cell kinds and lifecycle states
//   - The error taxonomy (FormatError, ExecutionError, TransportError, ValidationError)
//   - Service interfaces and configuration shared with adapters (Adapter, TargetConfig)
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
