// Package adapter provides the database adapter registry and shared
// database/sql plumbing used by the SQL kernel.
//
// The Adapter contract itself lives in pkg/core. Concrete adapters are in
// pkg/adapters/ subdirectories and register themselves from init().
package adapter

import (
	"github.com/leapstack-labs/leapnb/pkg/core"
)

type (
	// Adapter is an alias for core.Adapter.
	Adapter = core.Adapter

	// Config is an alias for core.AdapterConfig.
	Config = core.AdapterConfig

	// Rows is an alias for core.Rows.
	Rows = core.Rows
)
