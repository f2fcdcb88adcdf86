package server

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/salvo/internal/config"
	"github.com/zeusync/salvo/internal/core/ballistics"
	"github.com/zeusync/salvo/internal/core/battery"
	"github.com/zeusync/salvo/internal/core/observability/log"
	"github.com/zeusync/salvo/internal/core/systems/physics"
	"github.com/zeusync/salvo/internal/core/terrain"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Server.HTTPAddr = "127.0.0.1:0"
	cfg.Server.QUICAddr = "127.0.0.1:0"
	cfg.Server.TickStep = 0.01
	cfg.Battery.AimDelay = 0.05
	cfg.Battery.AimTimeout = 0.2
	cfg.Battery.FireInterval = 0.05
	return cfg
}

func newTestService(t *testing.T, cfg config.Config) *Service {
	t.Helper()
	svc, err := NewService(cfg, log.Nop(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func referenceShot() ballistics.ShotRequest {
	return ballistics.ShotRequest{Target: physics.V3(100, 0, 0), MuzzleSpeed: 50}
}

func TestServiceSolveFillsGravityAndCaches(t *testing.T) {
	svc := newTestService(t, testConfig())

	first := svc.Solve(referenceShot())
	assert.Equal(t, 9.81, first.Request.Gravity)
	assert.True(t, first.Selection.OK)
	assert.Equal(t, ballistics.ArcLow, first.Selection.Arc)
	assert.InDelta(t, 11.552, first.Selection.AngleDeg, 0.01)
	assert.InDelta(t, 78.448, first.Solution.HighAngleDeg, 0.01)
	require.NotNil(t, first.Impact)
	assert.False(t, first.Cached)

	second := svc.Solve(referenceShot())
	assert.True(t, second.Cached)
	assert.Equal(t, first.Selection, second.Selection)
	assert.EqualValues(t, 1, svc.Status().Cache.Hits)
}

func TestServiceSolveOutOfRangeIsAResult(t *testing.T) {
	svc := newTestService(t, testConfig())

	res := svc.Solve(ballistics.ShotRequest{Target: physics.V3(1000, 0, 0), MuzzleSpeed: 10})
	assert.False(t, res.Solution.Feasible)
	assert.Equal(t, ballistics.StatusOutOfRange, res.Solution.Status)
	assert.False(t, res.Selection.OK)
	assert.Nil(t, res.Impact)
}

func TestServiceSolveBatchKeepsOrder(t *testing.T) {
	svc := newTestService(t, testConfig())

	reqs := []ballistics.ShotRequest{
		referenceShot(),
		{Target: physics.V3(1000, 0, 0), MuzzleSpeed: 10},
		{Target: physics.V3(0, 0, 200), MuzzleSpeed: 80},
	}
	results, err := svc.SolveBatch(context.Background(), reqs)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, res := range results {
		assert.Equal(t, reqs[i].Target, res.Request.Target)
	}
	assert.True(t, results[0].Selection.OK)
	assert.False(t, results[1].Selection.OK)
	assert.True(t, results[2].Selection.OK)
}

func TestServiceSolveBatchLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Server.MaxBatch = 2
	svc := newTestService(t, cfg)

	_, err := svc.SolveBatch(context.Background(), make([]ballistics.ShotRequest, 3))
	assert.ErrorIs(t, err, ErrBatchTooLarge)
}

func TestServiceTrajectory(t *testing.T) {
	svc := newTestService(t, testConfig())

	res, err := svc.Trajectory(TrajectoryRequest{ShotRequest: referenceShot()})
	require.NoError(t, err)
	assert.InDelta(t, 11.552, res.AngleDeg, 0.01)
	assert.NotEmpty(t, res.Trajectory.Points)

	angle := 45.0
	res, err = svc.Trajectory(TrajectoryRequest{ShotRequest: referenceShot(), AngleDeg: &angle})
	require.NoError(t, err)
	assert.Equal(t, 45.0, res.AngleDeg)

	_, err = svc.Trajectory(TrajectoryRequest{ShotRequest: ballistics.ShotRequest{
		Target: physics.V3(1000, 0, 0), MuzzleSpeed: 10,
	}})
	assert.ErrorIs(t, err, ErrNoSolution)
}

func TestServiceTrajectoryRejectsUntraceableShots(t *testing.T) {
	cfg := testConfig()
	cfg.Terrain.Heightmap = &terrain.HeightmapSpec{CellSize: 10, Heights: [][]float64{{0, 1}, {2, 3}}}
	svc := newTestService(t, cfg)

	angle := 30.0
	huge := ballistics.ShotRequest{
		Origin:      physics.V3(-1e308, 0, 0),
		Target:      physics.V3(1e308, 0, 0),
		MuzzleSpeed: 50,
	}
	var reply Reply
	require.NotPanics(t, func() {
		reply = svc.Dispatch(Command{Action: ActionTrajectory, Request: &huge, AngleDeg: &angle})
	})
	assert.False(t, reply.OK)
	assert.Contains(t, reply.Error, ErrInvalidMessage.Error())

	nan := math.NaN()
	shot := referenceShot()
	_, err := svc.Trajectory(TrajectoryRequest{ShotRequest: shot, AngleDeg: &nan})
	assert.ErrorIs(t, err, ErrInvalidMessage)

	_, err = svc.Trajectory(TrajectoryRequest{ShotRequest: ballistics.ShotRequest{
		Target: physics.V3(100, 0, 0), MuzzleSpeed: -5,
	}, AngleDeg: &angle})
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestServiceMarkAndFire(t *testing.T) {
	svc := newTestService(t, testConfig())

	assert.ErrorIs(t, svc.Fire(), battery.ErrNoTarget)

	res, err := svc.Mark(physics.V3(0, 0, 500))
	require.NoError(t, err)
	assert.Len(t, res.Units, 3)

	require.NoError(t, svc.Fire())
	assert.ErrorIs(t, svc.Fire(), battery.ErrSalvoInProgress)

	st := svc.Status()
	require.NotNil(t, st.Battery.Salvo)
	assert.Equal(t, 3, st.Battery.Salvo.Total)
	assert.Positive(t, st.Events.Published, "mark and fire publish battery events")
	assert.Positive(t, st.Events.SubscribersActive)
}

func TestServiceDispatch(t *testing.T) {
	svc := newTestService(t, testConfig())
	shot := referenceShot()

	reply := svc.Dispatch(Command{ID: "1", Action: ActionSolve, Request: &shot})
	assert.True(t, reply.OK)
	assert.Equal(t, "1", reply.ID)
	assert.IsType(t, SolveResult{}, reply.Data)

	reply = svc.Dispatch(Command{ID: "2", Action: ActionSolve})
	assert.False(t, reply.OK)
	assert.Contains(t, reply.Error, ErrInvalidMessage.Error())

	reply = svc.Dispatch(Command{ID: "3", Action: "reload"})
	assert.False(t, reply.OK)
	assert.Contains(t, reply.Error, ErrUnknownAction.Error())

	reply = svc.Dispatch(Command{Action: ActionStatus})
	assert.True(t, reply.OK)
}

func TestDecodeCommand(t *testing.T) {
	cmd, err := decodeCommand([]byte(`{"id":"a","action":"mark","target":{"x":1,"y":2,"z":3}}`))
	require.NoError(t, err)
	assert.Equal(t, ActionMark, cmd.Action)
	require.NotNil(t, cmd.Target)
	assert.Equal(t, physics.V3(1, 2, 3), *cmd.Target)

	_, err = decodeCommand([]byte(`{"action":`))
	assert.ErrorIs(t, err, ErrInvalidMessage)
}
