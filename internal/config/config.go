package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/zeusync/salvo/internal/core/artillery"
	"github.com/zeusync/salvo/internal/core/ballistics"
	"github.com/zeusync/salvo/internal/core/battery"
	"github.com/zeusync/salvo/internal/core/observability/log"
	"github.com/zeusync/salvo/internal/core/systems/physics"
	"github.com/zeusync/salvo/internal/core/terrain"
)

var (
	ErrUnsupportedFormat = errors.New("config: unsupported file format")
	ErrInvalid           = errors.New("config: invalid")
)

// Config is the full service configuration. Every section has a default, so
// files only need to name what they change.
type Config struct {
	Log          LogConfig            `json:"log" yaml:"log"`
	Solver       ballistics.Config    `json:"solver" yaml:"solver"`
	Terrain      terrain.Spec         `json:"terrain" yaml:"terrain"`
	Battery      battery.Config       `json:"battery" yaml:"battery"`
	UnitDefaults artillery.UnitConfig `json:"unit_defaults" yaml:"unit_defaults"`
	Units        []UnitEntry          `json:"units" yaml:"units"`
	Server       ServerConfig         `json:"server" yaml:"server"`
}

type LogConfig struct {
	Level string `json:"level" yaml:"level"`
}

// UnitEntry places one gun. The gun profile comes from UnitDefaults.
type UnitEntry struct {
	ID            string       `json:"id" yaml:"id"`
	Position      physics.Vec3 `json:"position" yaml:"position"`
	MuzzleHeight  float64      `json:"muzzle_height" yaml:"muzzle_height"`
	InitialYawDeg float64      `json:"initial_yaw_deg" yaml:"initial_yaw_deg"`
	// MuzzleSpeed overrides the default profile when positive.
	MuzzleSpeed float64 `json:"muzzle_speed,omitempty" yaml:"muzzle_speed,omitempty"`
}

type ServerConfig struct {
	HTTPAddr string `json:"http_addr" yaml:"http_addr"`
	// QUICAddr enables the QUIC command listener when set.
	QUICAddr string `json:"quic_addr" yaml:"quic_addr"`
	// AuthToken, when set, is required as a bearer token or ?token= query
	// parameter on every request.
	AuthToken     string  `json:"auth_token" yaml:"auth_token"`
	TickStep      float64 `json:"tick_step" yaml:"tick_step"`
	CacheShards   int     `json:"cache_shards" yaml:"cache_shards"`
	CacheCapacity int     `json:"cache_capacity" yaml:"cache_capacity"`
	BatchWorkers  int     `json:"batch_workers" yaml:"batch_workers"`
	MaxBatch      int     `json:"max_batch" yaml:"max_batch"`
}

// TickInterval is TickStep as a duration.
func (s ServerConfig) TickInterval() time.Duration {
	return time.Duration(s.TickStep * float64(time.Second))
}

func Default() Config {
	return Config{
		Log:          LogConfig{Level: "info"},
		Solver:       ballistics.DefaultConfig(),
		Battery:      battery.DefaultConfig(),
		UnitDefaults: artillery.DefaultUnitConfig(),
		Units: []UnitEntry{
			{ID: "gun-1", Position: physics.V3(-40, 0, 0)},
			{ID: "gun-2", Position: physics.V3(0, 0, 0)},
			{ID: "gun-3", Position: physics.V3(40, 0, 0)},
		},
		Server: ServerConfig{
			HTTPAddr:      "127.0.0.1:8080",
			QUICAddr:      "127.0.0.1:8443",
			TickStep:      0.05,
			CacheShards:   16,
			CacheCapacity: 4096,
			BatchWorkers:  8,
			MaxBatch:      1024,
		},
	}
}

// Load reads a YAML or JSON file, chosen by extension, over Default and
// validates the result.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, pkgerrors.Wrap(err, "open config")
	}
	defer func() { _ = f.Close() }()

	var format string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = "yaml"
	case ".json":
		format = "json"
	default:
		return Config{}, pkgerrors.Wrapf(ErrUnsupportedFormat, "%q", filepath.Ext(path))
	}

	cfg, err := Decode(f, format)
	if err != nil {
		return Config{}, pkgerrors.Wrapf(err, "load %s", path)
	}
	return cfg, nil
}

// Decode reads format ("yaml" or "json") from r over Default and validates.
// Unknown keys are rejected.
func Decode(r io.Reader, format string) (Config, error) {
	cfg := Default()
	switch format {
	case "yaml":
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, pkgerrors.Wrap(err, "decode yaml")
		}
	case "json":
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, pkgerrors.Wrap(err, "decode json")
		}
	default:
		return Config{}, pkgerrors.Wrapf(ErrUnsupportedFormat, "%q", format)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// UnitConfigs expands Units over UnitDefaults.
func (c Config) UnitConfigs() []artillery.UnitConfig {
	out := make([]artillery.UnitConfig, len(c.Units))
	for i, e := range c.Units {
		u := c.UnitDefaults
		u.ID = e.ID
		u.Position = e.Position
		u.MuzzleHeight = e.MuzzleHeight
		u.InitialYawDeg = e.InitialYawDeg
		if e.MuzzleSpeed > 0 {
			u.MuzzleSpeed = e.MuzzleSpeed
		}
		out[i] = u
	}
	return out
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error
	add := func(section string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", section, err))
		}
	}

	add("log", validateLevel(c.Log.Level))
	add("solver", validateSolver(c.Solver))
	_, err := terrain.New(c.Terrain)
	add("terrain", err)
	add("battery", c.Battery.Validate())

	seen := make(map[string]bool, len(c.Units))
	for i, u := range c.UnitConfigs() {
		if u.ID != "" && seen[u.ID] {
			add(fmt.Sprintf("units[%d]", i), fmt.Errorf("duplicate id %q", u.ID))
		}
		seen[u.ID] = true
		add(fmt.Sprintf("units[%d]", i), u.Validate())
	}

	add("server", validateServer(c.Server))

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

func validateLevel(level string) error {
	name := strings.ToLower(strings.TrimSpace(level))
	if name == "warning" || log.ParseLevel(name).String() == name {
		return nil
	}
	return fmt.Errorf("unknown level %q", level)
}

func validateSolver(s ballistics.Config) error {
	switch {
	case s.Gravity <= 0:
		return fmt.Errorf("gravity %v must be positive", s.Gravity)
	case s.TimeStep <= 0:
		return fmt.Errorf("time_step %v must be positive", s.TimeStep)
	case s.MaxSteps <= 0:
		return fmt.Errorf("max_steps %d must be positive", s.MaxSteps)
	case s.SurfaceOffset < 0 || s.ArrivalTolerance < 0:
		return errors.New("surface_offset and arrival_tolerance must not be negative")
	case s.Elevation.MinDeg > s.Elevation.MaxDeg:
		return fmt.Errorf("elevation bounds [%v, %v] are inverted", s.Elevation.MinDeg, s.Elevation.MaxDeg)
	case s.Elevation.MinDeg < -90 || s.Elevation.MaxDeg > 90:
		return errors.New("elevation bounds must lie within [-90, 90]")
	}
	return nil
}

func validateServer(s ServerConfig) error {
	switch {
	case s.HTTPAddr == "" && s.QUICAddr == "":
		return errors.New("at least one of http_addr and quic_addr is required")
	case s.TickStep <= 0:
		return fmt.Errorf("tick_step %v must be positive", s.TickStep)
	case s.BatchWorkers <= 0:
		return fmt.Errorf("batch_workers %d must be positive", s.BatchWorkers)
	case s.MaxBatch <= 0:
		return fmt.Errorf("max_batch %d must be positive", s.MaxBatch)
	}
	return nil
}
