// Package viewer draws a side view of a shot over terrain in a terminal.
package viewer

import (
	"fmt"
	"math"

	"github.com/atotto/clipboard"
	"github.com/gdamore/tcell/v2"

	"github.com/zeusync/salvo/internal/core/ballistics"
	"github.com/zeusync/salvo/internal/core/systems/physics"
	"github.com/zeusync/salvo/internal/core/terrain"
)

const (
	targetStep = 5.0
	angleStep  = 0.5
	speedStep  = 5.0
	hudRows    = 2
)

var (
	styleGround  = tcell.StyleDefault.Foreground(tcell.ColorOlive)
	styleBox     = tcell.StyleDefault.Foreground(tcell.ColorGray)
	stylePath    = tcell.StyleDefault.Foreground(tcell.ColorYellow)
	styleGun     = tcell.StyleDefault.Foreground(tcell.ColorGreen).Bold(true)
	styleTarget  = tcell.StyleDefault.Foreground(tcell.ColorRed).Bold(true)
	styleImpact  = tcell.StyleDefault.Foreground(tcell.ColorFuchsia).Bold(true)
	styleHUD     = tcell.StyleDefault.Foreground(tcell.ColorWhite)
	styleWarning = tcell.StyleDefault.Foreground(tcell.ColorRed)
)

// Viewer owns the shot being inspected and redraws it on demand.
type Viewer struct {
	screen tcell.Screen
	solver *ballistics.Solver
	field  *terrain.Field

	shot   ballistics.ShotRequest
	manual *float64
	aim    ballistics.Aim
	path   ballistics.Trajectory
	notice string

	// Copy puts text on the system clipboard.
	Copy func(string) error
}

func New(screen tcell.Screen, solver *ballistics.Solver, field *terrain.Field, shot ballistics.ShotRequest) *Viewer {
	if shot.Gravity == 0 {
		shot.Gravity = solver.Config().Gravity
	}
	v := &Viewer{
		screen: screen,
		solver: solver,
		field:  field,
		shot:   shot,
		Copy:   clipboard.WriteAll,
	}
	v.recompute()
	return v
}

func (v *Viewer) Shot() ballistics.ShotRequest { return v.shot }
func (v *Viewer) Aim() ballistics.Aim          { return v.aim }
func (v *Viewer) Path() ballistics.Trajectory  { return v.path }
func (v *Viewer) Notice() string               { return v.notice }

// AngleDeg is the angle being traced: the manual override or the selected
// solution.
func (v *Viewer) AngleDeg() (float64, bool) {
	if v.manual != nil {
		return *v.manual, true
	}
	return v.aim.Selection.AngleDeg, v.aim.OK()
}

func (v *Viewer) recompute() {
	v.aim = v.solver.Aim(v.shot, v.field)
	switch {
	case v.manual != nil:
		v.path = v.solver.Trajectory(v.shot, *v.manual, v.field)
	case v.aim.OK():
		v.path = v.aim.Trajectory
	default:
		v.path = ballistics.Trajectory{}
	}
}

// moveTarget slides the target along the line of fire and snaps it to the
// ground.
func (v *Viewer) moveTarget(delta float64) {
	dir := v.shot.AimDirection()
	if dir.IsZero() {
		dir = physics.V3(1, 0, 0)
	}
	t := v.shot.Target.Add(dir.Scale(delta))
	if physics.FlatDistance(v.shot.Origin, t) < targetStep {
		return
	}
	v.shot.Target = v.field.SurfacePoint(t.X, t.Z)
}

func (v *Viewer) nudgeAngle(delta float64) {
	angle, ok := v.AngleDeg()
	if !ok {
		angle = 45
	}
	angle = physics.Clamp(angle+delta, -90, 90)
	v.manual = &angle
}

// HandleKey applies one key press. It returns false when the viewer should
// exit.
func (v *Viewer) HandleKey(ev *tcell.EventKey) bool {
	return v.Apply(ev.Key(), ev.Rune())
}

// Apply is HandleKey for a decoded key. r is only read for tcell.KeyRune.
func (v *Viewer) Apply(key tcell.Key, r rune) bool {
	v.notice = ""
	switch key {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return false
	case tcell.KeyRight:
		v.moveTarget(targetStep)
	case tcell.KeyLeft:
		v.moveTarget(-targetStep)
	case tcell.KeyUp:
		v.nudgeAngle(angleStep)
	case tcell.KeyDown:
		v.nudgeAngle(-angleStep)
	case tcell.KeyRune:
		switch r {
		case 'q':
			return false
		case 'a':
			v.manual = nil
		case '+', '=':
			v.shot.MuzzleSpeed += speedStep
		case '-':
			v.shot.MuzzleSpeed = math.Max(speedStep, v.shot.MuzzleSpeed-speedStep)
		case 'y':
			if err := v.Copy(v.Summary()); err != nil {
				v.notice = "copy failed: " + err.Error()
			} else {
				v.notice = "copied"
			}
			return true
		}
	}
	v.recompute()
	return true
}

// Summary is a one-line description of the current solution.
func (v *Viewer) Summary() string {
	sol := v.aim.Solution
	if !sol.Feasible {
		return fmt.Sprintf("target %s at %.1fm: %s (v=%.1f m/s)",
			fmtVec(v.shot.Target), sol.Distance, sol.Status, v.shot.MuzzleSpeed)
	}
	sel := v.aim.Selection
	s := fmt.Sprintf("target %s at %.1fm: %s arc %.2f° (low %.2f° high %.2f°) yaw %.1f° tof %.2fs v=%.1f m/s",
		fmtVec(v.shot.Target), sol.Distance, sel.Arc, sel.AngleDeg,
		sol.LowAngleDeg, sol.HighAngleDeg, physics.Yaw(v.shot.Origin, v.shot.Target), v.aim.TimeToHit, v.shot.MuzzleSpeed)
	if sel.Clamped {
		s += " clamped"
	}
	if sel.LowBlocked {
		s += " low-blocked"
	}
	return s
}

func fmtVec(p physics.Vec3) string {
	return fmt.Sprintf("(%.1f, %.1f, %.1f)", p.X, p.Y, p.Z)
}

// projection maps the vertical plane through origin and target onto screen
// cells. Column 0 is the origin side.
type projection struct {
	origin     physics.Vec3
	dir        physics.Vec3
	minD, maxD float64
	minY, maxY float64
	w, h       int
}

func (p projection) along(pt physics.Vec3) float64 {
	return pt.Sub(p.origin).Flat().Dot(p.dir)
}

func (p projection) cell(d, y float64) (int, int, bool) {
	x := int(math.Round((d - p.minD) / (p.maxD - p.minD) * float64(p.w-1)))
	row := int(math.Round((p.maxY - y) / (p.maxY - p.minY) * float64(p.h-1)))
	return x, row, x >= 0 && x < p.w && row >= 0 && row < p.h
}

func (p projection) world(col int) (d float64, at physics.Vec3) {
	d = p.minD + (p.maxD-p.minD)*float64(col)/float64(max(p.w-1, 1))
	at = p.origin.Add(p.dir.Scale(d))
	return d, at
}

func (v *Viewer) project(w, h int) projection {
	dir := v.shot.AimDirection()
	if dir.IsZero() {
		dir = physics.V3(1, 0, 0)
	}
	p := projection{origin: v.shot.Origin, dir: dir, w: w, h: h}

	reach := p.along(v.shot.Target)
	minY, maxY := math.Min(v.shot.Origin.Y, v.shot.Target.Y), math.Max(v.shot.Origin.Y, v.shot.Target.Y)
	for _, pt := range v.path.Points {
		reach = math.Max(reach, p.along(pt))
		minY = math.Min(minY, pt.Y)
		maxY = math.Max(maxY, pt.Y)
	}
	margin := math.Max(reach*0.05, 1)
	p.minD, p.maxD = -margin, reach+margin

	for col := range w {
		_, at := p.world(col)
		ground := v.field.HeightAt(at.X, at.Z)
		minY = math.Min(minY, ground)
		maxY = math.Max(maxY, ground)
	}
	span := math.Max(maxY-minY, 1)
	p.minY, p.maxY = minY-span*0.05, maxY+span*0.1
	return p
}

// Draw renders the scene and the status lines.
func (v *Viewer) Draw() {
	v.screen.Clear()
	w, h := v.screen.Size()
	if w < 2 || h <= hudRows+1 {
		v.screen.Show()
		return
	}
	p := v.project(w, h-hudRows)

	for col := range w {
		_, at := p.world(col)
		_, top, ok := p.cell(0, v.field.HeightAt(at.X, at.Z))
		if !ok && top >= p.h {
			continue
		}
		for row := max(top, 0); row < p.h; row++ {
			v.screen.SetContent(col, row, '▒', nil, styleGround)
		}
	}
	v.drawObstacles(p)

	for _, pt := range v.path.Points {
		if x, y, ok := p.cell(p.along(pt), pt.Y); ok {
			v.screen.SetContent(x, y, '·', nil, stylePath)
		}
	}
	if impact, ok := v.path.Impact(); ok {
		if x, y, ok := p.cell(p.along(impact), impact.Y); ok {
			v.screen.SetContent(x, y, '*', nil, styleImpact)
		}
	}
	if x, y, ok := p.cell(0, v.shot.Origin.Y); ok {
		v.screen.SetContent(x, y, 'A', nil, styleGun)
	}
	if x, y, ok := p.cell(p.along(v.shot.Target), v.shot.Target.Y); ok {
		v.screen.SetContent(x, y, 'X', nil, styleTarget)
	}

	v.drawText(0, h-2, v.status(), styleHUD)
	help := "←/→ target  ↑/↓ angle  a auto  +/- speed  y copy  q quit"
	style := styleHUD
	if v.notice != "" {
		help, style = v.notice, styleWarning
	}
	v.drawText(0, h-1, help, style)
	v.screen.Show()
}

func (v *Viewer) drawObstacles(p projection) {
	for _, b := range v.field.Obstacles() {
		for col := range p.w {
			_, at := p.world(col)
			if at.X < b.Min.X || at.X > b.Max.X || at.Z < b.Min.Z || at.Z > b.Max.Z {
				continue
			}
			_, top, _ := p.cell(0, b.Max.Y)
			_, bottom, _ := p.cell(0, b.Min.Y)
			for row := max(top, 0); row <= min(bottom, p.h-1); row++ {
				v.screen.SetContent(col, row, '█', nil, styleBox)
			}
		}
	}
}

func (v *Viewer) status() string {
	angle, ok := v.AngleDeg()
	mode := "auto"
	if v.manual != nil {
		mode = "manual"
	}
	if !ok {
		return fmt.Sprintf("%s | %s", v.aim.Solution.Status, v.Summary())
	}
	return fmt.Sprintf("%s %.2f° %s | %s", mode, angle, v.path.Termination, v.Summary())
}

func (v *Viewer) drawText(x, y int, s string, style tcell.Style) {
	for _, r := range s {
		v.screen.SetContent(x, y, r, nil, style)
		x++
	}
}
