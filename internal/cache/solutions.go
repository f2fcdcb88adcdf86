package cache

import (
	"github.com/zeusync/salvo/internal/core/ballistics"
)

// Solutions memoizes Solver.Aim for a fixed clearance query. Keys are the
// canonical request text, so the cache must be purged when the terrain
// behind query changes.
type Solutions struct {
	solver *ballistics.Solver
	query  ballistics.ClearanceQuery
	cache  *Sharded[ballistics.Aim]
}

func NewSolutions(solver *ballistics.Solver, query ballistics.ClearanceQuery, shards, capacity int) *Solutions {
	return &Solutions{
		solver: solver,
		query:  query,
		cache:  NewSharded[ballistics.Aim](shards, capacity),
	}
}

// Aim returns the cached answer for req, solving on a miss. The second result
// reports a cache hit.
func (s *Solutions) Aim(req ballistics.ShotRequest) (ballistics.Aim, bool) {
	return s.cache.GetOrCompute(req.Key(), func() ballistics.Aim {
		return s.solver.Aim(req, s.query)
	})
}

func (s *Solutions) Purge() { s.cache.Purge() }

func (s *Solutions) Stats() Stats { return s.cache.Stats() }
