package kernel

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// DecodeSettings decodes the free-form Settings map into out.
// Durations may be given as strings ("500ms") or nanosecond integers.
func DecodeSettings(settings map[string]any, out any) error {
	if len(settings) == 0 {
		return nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("failed to create settings decoder: %w", err)
	}
	if err := dec.Decode(settings); err != nil {
		return fmt.Errorf("invalid kernel settings: %w", err)
	}
	return nil
}
