// File: internal/config/humanoid_config.go
// This file defines the ReactionConfig struct, which controls how long the agent
// waits around each simulated key press. The delay is a base wait plus an optional
// uniformly random jitter, so consecutive inputs are not perfectly mechanical.
//
// These are only fallbacks: the persisted user preferences ("jitter") override
// Jitter at the start of every fishing session.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// ReactionConfig holds the jitter bounds of the reaction timing model.
type ReactionConfig struct {
	Jitter       bool `mapstructure:"jitter" yaml:"jitter"`
	LowerBoundMs int  `mapstructure:"lower_bound_ms" yaml:"lower_bound_ms"`
	UpperBoundMs int  `mapstructure:"upper_bound_ms" yaml:"upper_bound_ms"`
}

// setReactionDefaults centralizes the reaction model defaults.
func setReactionDefaults(v *viper.Viper) {
	v.SetDefault("reaction.jitter", false)
	v.SetDefault("reaction.lower_bound_ms", 16)
	v.SetDefault("reaction.upper_bound_ms", 2500)
}

// Validate checks the jitter bounds. An upper bound at or below the lower bound is
// allowed and simply disables the jitter term.
func (r *ReactionConfig) Validate() error {
	if r.LowerBoundMs < 0 || r.UpperBoundMs < 0 {
		return fmt.Errorf("lower_bound_ms and upper_bound_ms must not be negative")
	}
	return nil
}
