// Package core defines the shared language of the fhirsql system.
//
// This package contains:
//   - Translation output (Fragment, CTE, ValueType)
//   - Service interfaces (Adapter)
//   - Configuration types (ProjectConfig, TargetConfig, DialectConfig)
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
