package config

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapnb/pkg/adapter"
	"github.com/leapstack-labs/leapnb/pkg/kernel"
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Kernel == "" {
		return fmt.Errorf("kernel is required\nHint: set kernel in leapnb.yaml or pass --kernel")
	}
	if !kernel.IsRegistered(c.Kernel) {
		return &kernel.UnknownKernelError{Name: c.Kernel, Available: kernel.List()}
	}

	switch c.Output {
	case OutputAuto, OutputText, OutputJSON:
	default:
		return fmt.Errorf("invalid output format %q (expected auto, text or json)", c.Output)
	}

	if c.ExecTimeout < 0 {
		return fmt.Errorf("exec_timeout must not be negative, got %s", c.ExecTimeout)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}

	if c.Target != nil {
		if err := ValidateTarget(c.Target.Type); err != nil {
			return fmt.Errorf("invalid target configuration: %w", err)
		}
	}
	return nil
}

// ValidateTarget checks that an adapter is registered for the target type.
func ValidateTarget(targetType string) error {
	if targetType == "" {
		return fmt.Errorf("target type is required")
	}
	if !adapter.IsRegistered(strings.ToLower(targetType)) {
		return &adapter.UnknownAdapterError{
			Type:      targetType,
			Available: adapter.ListAdapters(),
		}
	}
	return nil
}
