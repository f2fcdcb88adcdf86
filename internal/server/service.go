package server

import (
	"context"
	"encoding/json"
	"math"
	"sync"

	"github.com/pkg/errors"

	"github.com/zeusync/salvo/internal/cache"
	"github.com/zeusync/salvo/internal/config"
	"github.com/zeusync/salvo/internal/core/artillery"
	"github.com/zeusync/salvo/internal/core/ballistics"
	"github.com/zeusync/salvo/internal/core/battery"
	"github.com/zeusync/salvo/internal/core/events/bus"
	"github.com/zeusync/salvo/internal/core/observability/log"
	"github.com/zeusync/salvo/internal/core/systems/physics"
	"github.com/zeusync/salvo/internal/core/terrain"
	"github.com/zeusync/salvo/pkg/concurrent"
)

// Service is the transport-independent fire-control core. Solves run without
// locking; everything touching the battery holds mu, which the tick loop
// shares.
type Service struct {
	cfg       config.Config
	logger    log.Log
	bus       bus.EventBus
	field     *terrain.Field
	solver    *ballistics.Solver
	solutions *cache.Solutions
	events    *eventLog

	mu      sync.Mutex
	battery *battery.Battery
}

func NewService(cfg config.Config, logger log.Log, b bus.EventBus) (*Service, error) {
	if logger == nil {
		logger = log.Provide()
	}
	if b == nil {
		b = bus.New()
	}
	field, err := terrain.New(cfg.Terrain)
	if err != nil {
		return nil, errors.Wrap(err, "build terrain")
	}
	solver := ballistics.NewSolver(cfg.Solver, logger)

	bat, err := battery.New(cfg.Battery, b, logger)
	if err != nil {
		return nil, err
	}
	for _, uc := range cfg.UnitConfigs() {
		u, err := artillery.NewUnit(uc, artillery.Deps{
			Solver:    solver,
			Clearance: field,
			Bus:       b,
			Logger:    logger,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "unit %q", uc.ID)
		}
		if err := bat.Register(u); err != nil {
			return nil, err
		}
	}

	events := &eventLog{logger: logger.With(log.String("component", "bus"))}
	b.AddObserver(events)

	return &Service{
		cfg:       cfg,
		logger:    logger.With(log.String("component", "service")),
		bus:       b,
		field:     field,
		solver:    solver,
		solutions: cache.NewSolutions(solver, field, cfg.Server.CacheShards, cfg.Server.CacheCapacity),
		events:    events,
		battery:   bat,
	}, nil
}

// eventLog traces bus traffic and turns on the bus delivery counters.
type eventLog struct {
	logger log.Log
}

func (e *eventLog) OnPublish(eventType string, event bus.Event) {
	e.logger.Debug("Event published", log.String("type", eventType), log.String("source", event.Source()))
}

func (e *eventLog) OnDelivered(eventType string, handlers int, err error, durationMicros int64) {
	if err != nil {
		e.logger.Warn("Event handler failed",
			log.String("type", eventType),
			log.Int("handlers", handlers),
			log.Int64("duration_us", durationMicros),
			log.Error(err))
	}
}

func (s *Service) Bus() bus.EventBus { return s.bus }

// SolveResult is the public answer for one shot.
type SolveResult struct {
	Request     ballistics.ShotRequest    `json:"request"`
	Solution    ballistics.FiringSolution `json:"solution"`
	Selection   ballistics.Selection      `json:"selection"`
	AimDir      physics.Vec3              `json:"aim_dir"`
	TimeToHit   float64                   `json:"time_to_hit"`
	Impact      *physics.Vec3             `json:"impact,omitempty"`
	Termination ballistics.Termination    `json:"termination"`
	Cached      bool                      `json:"cached"`
}

// normalize fills a missing gravity with the configured one.
func (s *Service) normalize(req ballistics.ShotRequest) ballistics.ShotRequest {
	if req.Gravity == 0 {
		req.Gravity = s.cfg.Solver.Gravity
	}
	return req
}

// Solve answers one shot against the configured terrain. Infeasible shots
// are results, not errors.
func (s *Service) Solve(req ballistics.ShotRequest) SolveResult {
	req = s.normalize(req)
	aim, hit := s.solutions.Aim(req)

	res := SolveResult{
		Request:   req,
		Solution:  aim.Solution,
		Selection: aim.Selection,
		AimDir:    aim.AimDir,
		TimeToHit: aim.TimeToHit,
		Cached:    hit,
	}
	if impact, ok := aim.Trajectory.Impact(); ok && aim.OK() {
		res.Impact = &impact
		res.Termination = aim.Trajectory.Termination
	}
	return res
}

func (s *Service) SolveBatch(ctx context.Context, reqs []ballistics.ShotRequest) ([]SolveResult, error) {
	if len(reqs) > s.cfg.Server.MaxBatch {
		return nil, errors.Wrapf(ErrBatchTooLarge, "%d requests, limit %d", len(reqs), s.cfg.Server.MaxBatch)
	}
	return concurrent.Map(ctx, reqs, s.cfg.Server.BatchWorkers,
		func(_ context.Context, req ballistics.ShotRequest) (SolveResult, error) {
			return s.Solve(req), nil
		})
}

// TrajectoryRequest traces a shot at AngleDeg, or at the selected angle when
// AngleDeg is nil.
type TrajectoryRequest struct {
	ballistics.ShotRequest
	AngleDeg *float64 `json:"angle_deg,omitempty"`
}

type TrajectoryResult struct {
	AngleDeg   float64               `json:"angle_deg"`
	Trajectory ballistics.Trajectory `json:"trajectory"`
}

func (s *Service) Trajectory(req TrajectoryRequest) (TrajectoryResult, error) {
	shot := s.normalize(req.ShotRequest)
	if err := shot.Validate(); err != nil {
		return TrajectoryResult{}, errors.Wrap(ErrInvalidMessage, err.Error())
	}
	if req.AngleDeg != nil {
		if math.IsNaN(*req.AngleDeg) || math.IsInf(*req.AngleDeg, 0) {
			return TrajectoryResult{}, errors.Wrapf(ErrInvalidMessage, "angle %g", *req.AngleDeg)
		}
		return TrajectoryResult{
			AngleDeg:   *req.AngleDeg,
			Trajectory: s.solver.Trajectory(shot, *req.AngleDeg, s.field),
		}, nil
	}

	aim, _ := s.solutions.Aim(shot)
	if !aim.OK() {
		return TrajectoryResult{}, errors.Wrap(ErrNoSolution, aim.Solution.Status.String())
	}
	return TrajectoryResult{AngleDeg: aim.Selection.AngleDeg, Trajectory: aim.Trajectory}, nil
}

// MarkResult lists the units assigned to a mark.
type MarkResult struct {
	Target physics.Vec3 `json:"target"`
	Units  []string     `json:"units"`
}

func (s *Service) Mark(target physics.Vec3) (MarkResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids, err := s.battery.MarkTarget(target)
	if err != nil {
		return MarkResult{}, err
	}
	return MarkResult{Target: target, Units: ids}, nil
}

func (s *Service) Fire() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.battery.ConfirmFire()
}

// StatusResult is the battery view plus solver cache and event bus counters.
type StatusResult struct {
	Battery battery.Snapshot    `json:"battery"`
	Cache   cache.Stats         `json:"cache"`
	Events  bus.EventBusMetrics `json:"events"`
}

func (s *Service) Status() StatusResult {
	s.mu.Lock()
	snap := s.battery.Snapshot()
	s.mu.Unlock()
	return StatusResult{Battery: snap, Cache: s.solutions.Stats(), Events: s.bus.GetMetrics()}
}

// Tick advances the battery by dt. The caller must hold Locker.
func (s *Service) Tick(dt float64) { s.battery.Tick(dt) }

// Locker guards the battery for the tick loop.
func (s *Service) Locker() sync.Locker { return &s.mu }

func (s *Service) Close() error {
	s.bus.RemoveObserver(s.events)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.battery.Close()
}

// Command actions shared by the WebSocket and QUIC transports.
const (
	ActionSolve      = "solve"
	ActionTrajectory = "trajectory"
	ActionMark       = "mark"
	ActionFire       = "fire"
	ActionStatus     = "status"
)

// Command is one client request on a streaming transport.
type Command struct {
	ID       string                  `json:"id,omitempty"`
	Action   string                  `json:"action"`
	Token    string                  `json:"token,omitempty"`
	Request  *ballistics.ShotRequest `json:"request,omitempty"`
	AngleDeg *float64                `json:"angle_deg,omitempty"`
	Target   *physics.Vec3           `json:"target,omitempty"`
}

// Reply answers exactly one Command.
type Reply struct {
	ID     string `json:"id,omitempty"`
	Action string `json:"action"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// Dispatch runs cmd and always returns a Reply.
func (s *Service) Dispatch(cmd Command) Reply {
	data, err := s.dispatch(cmd)
	reply := Reply{ID: cmd.ID, Action: cmd.Action, OK: err == nil, Data: data}
	if err != nil {
		reply.Error = err.Error()
		s.logger.Debug("Command failed", log.String("action", cmd.Action), log.Error(err))
	}
	return reply
}

func (s *Service) dispatch(cmd Command) (any, error) {
	switch cmd.Action {
	case ActionSolve:
		if cmd.Request == nil {
			return nil, errors.Wrap(ErrInvalidMessage, "solve needs a request")
		}
		return s.Solve(*cmd.Request), nil
	case ActionTrajectory:
		if cmd.Request == nil {
			return nil, errors.Wrap(ErrInvalidMessage, "trajectory needs a request")
		}
		return s.Trajectory(TrajectoryRequest{ShotRequest: *cmd.Request, AngleDeg: cmd.AngleDeg})
	case ActionMark:
		if cmd.Target == nil {
			return nil, errors.Wrap(ErrInvalidMessage, "mark needs a target")
		}
		return s.Mark(*cmd.Target)
	case ActionFire:
		return nil, s.Fire()
	case ActionStatus:
		return s.Status(), nil
	default:
		return nil, errors.Wrapf(ErrUnknownAction, "%q", cmd.Action)
	}
}

// decodeCommand parses one JSON command.
func decodeCommand(raw []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return Command{}, errors.Wrap(ErrInvalidMessage, err.Error())
	}
	return cmd, nil
}
