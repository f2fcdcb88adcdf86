package battery

import (
	"errors"
	"fmt"
)

// Config tunes target assignment and salvo timing. Times are seconds.
type Config struct {
	// MaxRange limits which units may engage a mark. Zero disables the limit.
	MaxRange     float64 `json:"max_range" yaml:"max_range"`
	MaxUnits     int     `json:"max_units" yaml:"max_units"`
	AimDelay     float64 `json:"aim_delay" yaml:"aim_delay"`
	AimTimeout   float64 `json:"aim_timeout" yaml:"aim_timeout"`
	FireInterval float64 `json:"fire_interval" yaml:"fire_interval"`
}

func DefaultConfig() Config {
	return Config{
		MaxRange:     1500,
		MaxUnits:     3,
		AimDelay:     0.5,
		AimTimeout:   1,
		FireInterval: 0.3,
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.MaxRange < 0 {
		errs = append(errs, fmt.Errorf("max_range %v must not be negative", c.MaxRange))
	}
	if c.MaxUnits <= 0 {
		errs = append(errs, fmt.Errorf("max_units %d must be positive", c.MaxUnits))
	}
	if c.AimDelay < 0 || c.AimTimeout < 0 || c.FireInterval < 0 {
		errs = append(errs, errors.New("salvo delays must not be negative"))
	}
	return errors.Join(errs...)
}
