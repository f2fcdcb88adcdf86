package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gdamore/tcell/v2"

	"github.com/zeusync/salvo/internal/config"
	"github.com/zeusync/salvo/internal/core/ballistics"
	"github.com/zeusync/salvo/internal/core/observability/log"
	"github.com/zeusync/salvo/internal/core/systems/physics"
	"github.com/zeusync/salvo/internal/core/terrain"
	"github.com/zeusync/salvo/internal/viewer"
)

// vecFlag parses "x,y,z".
type vecFlag struct{ v *physics.Vec3 }

func (f vecFlag) String() string {
	if f.v == nil {
		return ""
	}
	return fmt.Sprintf("%g,%g,%g", f.v.X, f.v.Y, f.v.Z)
}

func (f vecFlag) Set(s string) error {
	var p physics.Vec3
	if _, err := fmt.Sscanf(s, "%g,%g,%g", &p.X, &p.Y, &p.Z); err != nil {
		return fmt.Errorf("want x,y,z: %w", err)
	}
	*f.v = p
	return nil
}

func main() {
	origin := physics.V3(0, 0, 0)
	target := physics.V3(0, 0, 500)
	configPath := flag.String("config", "", "optional config file for solver and terrain")
	speed := flag.Float64("speed", 150, "muzzle speed in m/s")
	flag.Var(vecFlag{&origin}, "origin", "gun position as x,y,z")
	flag.Var(vecFlag{&target}, "target", "target position as x,y,z")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, "Error loading config:", err)
			os.Exit(1)
		}
	}
	field, err := terrain.New(cfg.Terrain)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error building terrain:", err)
		os.Exit(1)
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to initialize:", err)
		os.Exit(1)
	}
	if err = screen.Init(); err != nil {
		fmt.Fprintln(os.Stderr, "Failed to initialize:", err)
		os.Exit(1)
	}
	defer screen.Fini()

	solver := ballistics.NewSolver(cfg.Solver, log.Nop())
	v := viewer.New(screen, solver, field, ballistics.ShotRequest{
		Origin:      origin,
		Target:      target,
		MuzzleSpeed: *speed,
	})

	v.Draw()
	for {
		switch ev := screen.PollEvent().(type) {
		case nil:
			return
		case *tcell.EventKey:
			if !v.HandleKey(ev) {
				return
			}
			v.Draw()
		case *tcell.EventResize:
			screen.Sync()
			v.Draw()
		}
	}
}
