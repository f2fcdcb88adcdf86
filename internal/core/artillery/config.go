package artillery

import (
	"github.com/pkg/errors"
	"github.com/zeusync/salvo/internal/core/systems/physics"
)

// UnitConfig describes one gun. Angles are degrees, rates degrees per second,
// times seconds.
type UnitConfig struct {
	ID       string       `json:"id" yaml:"id"`
	Position physics.Vec3 `json:"position" yaml:"position"`
	// MuzzleHeight lifts the shoot point above Position.
	MuzzleHeight  float64 `json:"muzzle_height" yaml:"muzzle_height"`
	InitialYawDeg float64 `json:"initial_yaw_deg" yaml:"initial_yaw_deg"`

	MuzzleSpeed   float64 `json:"muzzle_speed" yaml:"muzzle_speed"`
	ShootInterval float64 `json:"shoot_interval" yaml:"shoot_interval"`
	MaxAmmo       int     `json:"max_ammo" yaml:"max_ammo"`
	ReloadTime    float64 `json:"reload_time" yaml:"reload_time"`

	MinSpreadDeg float64 `json:"min_spread_deg" yaml:"min_spread_deg"`
	MaxSpreadDeg float64 `json:"max_spread_deg" yaml:"max_spread_deg"`

	TraverseRate  float64 `json:"traverse_rate" yaml:"traverse_rate"`
	ElevationRate float64 `json:"elevation_rate" yaml:"elevation_rate"`
	AimThreshold  float64 `json:"aim_threshold" yaml:"aim_threshold"`

	// CooldownDelay is how long a unit reports Fired before returning to Idle.
	CooldownDelay float64 `json:"cooldown_delay" yaml:"cooldown_delay"`
}

func DefaultUnitConfig() UnitConfig {
	return UnitConfig{
		MuzzleSpeed:   150,
		ShootInterval: 3,
		MaxAmmo:       10,
		ReloadTime:    2,
		MinSpreadDeg:  0,
		MaxSpreadDeg:  2,
		TraverseRate:  12,
		ElevationRate: 7,
		AimThreshold:  1,
		CooldownDelay: 2,
	}
}

func (c UnitConfig) Validate() error {
	switch {
	case !c.Position.IsFinite():
		return errors.Wrap(ErrInvalidConfig, "position must be finite")
	case c.MuzzleSpeed <= 0:
		return errors.Wrapf(ErrInvalidConfig, "muzzle_speed %v must be positive", c.MuzzleSpeed)
	case c.ShootInterval < 0:
		return errors.Wrapf(ErrInvalidConfig, "shoot_interval %v must not be negative", c.ShootInterval)
	case c.MaxAmmo <= 0:
		return errors.Wrapf(ErrInvalidConfig, "max_ammo %d must be positive", c.MaxAmmo)
	case c.ReloadTime < 0:
		return errors.Wrapf(ErrInvalidConfig, "reload_time %v must not be negative", c.ReloadTime)
	case c.MinSpreadDeg < 0 || c.MaxSpreadDeg < c.MinSpreadDeg:
		return errors.Wrapf(ErrInvalidConfig, "spread [%v, %v] is not a valid range", c.MinSpreadDeg, c.MaxSpreadDeg)
	case c.TraverseRate <= 0 || c.ElevationRate <= 0:
		return errors.Wrap(ErrInvalidConfig, "actuator rates must be positive")
	case c.AimThreshold <= 0:
		return errors.Wrapf(ErrInvalidConfig, "aim_threshold %v must be positive", c.AimThreshold)
	case c.CooldownDelay < 0:
		return errors.Wrapf(ErrInvalidConfig, "cooldown_delay %v must not be negative", c.CooldownDelay)
	}
	return nil
}
