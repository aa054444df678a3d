package commands

import (
	"github.com/mosaicnetworks/turnstile/src/config"
)

// CLIConfig contains configuration for the Run command
type CLIConfig struct {
	Turnstile config.Config `mapstructure:",squash"`

	// Leave makes the node notify the group before stopping on SIGINT.
	Leave bool `mapstructure:"leave"`
}

// NewDefaultCLIConfig creates a CLIConfig with default values
func NewDefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		Turnstile: *config.NewDefaultConfig(),
		Leave:     true,
	}
}
