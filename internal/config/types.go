// Package config loads leapnb configuration.
//
// Values are layered, lowest to highest: built-in defaults, the config file
// (leapnb.yaml or leapnb.yml), LEAPNB_ environment variables, and flags that
// were set explicitly on the command line.
package config

import (
	"strings"
	"time"

	"github.com/leapstack-labs/leapnb/pkg/core"
)

// Config holds all CLI configuration options.
type Config struct {
	// Kernel is the registry name of the transport cells run on.
	Kernel      string        `koanf:"kernel"`
	ExecTimeout time.Duration `koanf:"exec_timeout"`
	Verbose     bool          `koanf:"verbose"`
	Output      string        `koanf:"output"`

	Target *core.TargetConfig `koanf:"target"`

	// Kernel-specific sections, handed to the kernel factory undecoded.
	Mock     map[string]any `koanf:"mock"`
	Starlark map[string]any `koanf:"starlark"`
	SQL      map[string]any `koanf:"sql"`
	Remote   map[string]any `koanf:"remote"`

	Server ServerConfig `koanf:"server"`

	// ConfigFile is the file the values were read from, if any.
	ConfigFile string `koanf:"-"`
}

// ServerConfig holds configuration for `leapnb serve`.
type ServerConfig struct {
	Port int `koanf:"port"`
}

// Default configuration values.
const (
	DefaultKernel     = "mock"
	DefaultOutput     = "auto" // Auto-detect: TTY=text, non-TTY=plain
	DefaultServerPort = 8787
	DefaultTargetType = "duckdb"
)

// Output modes.
const (
	OutputAuto = "auto"
	OutputText = "text"
	OutputJSON = "json"
)

// Config file names, in lookup order.
var configFileNames = []string{"leapnb.yaml", "leapnb.yml"}

// KernelSettings returns the settings section for the named kernel.
// The local kernel routes to starlark and sql, so it receives both.
func (c *Config) KernelSettings(name string) map[string]any {
	switch name {
	case "mock":
		return c.Mock
	case "starlark":
		return c.Starlark
	case "sql":
		return c.SQL
	case "remote":
		return c.Remote
	case "local":
		s := make(map[string]any, 2)
		if c.Starlark != nil {
			s["starlark"] = c.Starlark
		}
		if c.SQL != nil {
			s["sql"] = c.SQL
		}
		return s
	default:
		return nil
	}
}

// DefaultSchemaForType returns the default schema for a database type.
func DefaultSchemaForType(dbType string) string {
	if dbType == "postgres" {
		return "public"
	}
	return "main"
}

// ApplyTargetDefaults applies default values to a TargetConfig based on the target type.
func ApplyTargetDefaults(t *core.TargetConfig) {
	if t == nil {
		return
	}
	t.Type = strings.ToLower(t.Type)
	if t.Type == "" {
		t.Type = DefaultTargetType
	}
	if t.Schema == "" {
		t.Schema = DefaultSchemaForType(t.Type)
	}
	if t.Type == "postgres" && t.Port == 0 {
		t.Port = 5432
	}
}
