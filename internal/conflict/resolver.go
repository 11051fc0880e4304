// Package conflict detects divergence between the local and server copies of
// a document and resolves it according to a per-type strategy.
package conflict

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/asteroid-belt/prepsync/internal/log"
	"github.com/asteroid-belt/prepsync/internal/models"
)

var (
	// ErrMergeFailure is reported when a merge cannot be computed. Resolve
	// recovers from it by falling back to merge_latest_wins.
	ErrMergeFailure = errors.New("merge failure")

	// ErrConflictNotFound is returned by ResolveChoice for an unknown id.
	ErrConflictNotFound = errors.New("conflict not found")

	// ErrInvalidChoice is returned by ResolveChoice for an unknown choice.
	ErrInvalidChoice = errors.New("invalid choice")
)

// DefaultStrategies returns the strategy used for each data type when none is
// configured.
func DefaultStrategies() map[models.DataType]models.Strategy {
	return map[models.DataType]models.Strategy{
		models.DataProgress: models.StrategyMergeLatestWins,
		models.DataSettings: models.StrategyUserChoice,
	}
}

// ParseStrategy reports whether s names a supported strategy.
func ParseStrategy(s string) (models.Strategy, bool) {
	switch st := models.Strategy(s); st {
	case models.StrategyServerWins, models.StrategyLocalWins,
		models.StrategyMergeLatestWins, models.StrategyMergeBoth,
		models.StrategyUserChoice:
		return st, true
	}
	return models.Strategy(s), false
}

// Config tunes a Resolver.
type Config struct {
	// Threshold below which lastModified differences are ignored (default 5s).
	Threshold time.Duration

	// Strategies overrides DefaultStrategies per data type.
	Strategies map[models.DataType]models.Strategy

	Logger *log.Logger
	Now    func() time.Time
	NewID  func() string
}

// Resolver holds per-type strategies and the conflicts waiting for a user
// choice. It is safe for concurrent use.
type Resolver struct {
	threshold time.Duration
	logger    *log.Logger
	now       func() time.Time
	newID     func() string

	mu         sync.Mutex
	strategies map[models.DataType]models.Strategy
	pending    []models.Conflict
}

// New creates a resolver.
func New(cfg Config) *Resolver {
	r := &Resolver{
		threshold:  cfg.Threshold,
		logger:     cfg.Logger,
		now:        cfg.Now,
		newID:      cfg.NewID,
		strategies: DefaultStrategies(),
	}
	if r.threshold <= 0 {
		r.threshold = DefaultThreshold
	}
	if r.logger == nil {
		r.logger = log.Default()
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.newID == nil {
		r.newID = uuid.NewString
	}
	for dt, s := range cfg.Strategies {
		r.strategies[dt] = s
	}
	return r
}

// SetStrategy changes the strategy for a data type.
func (r *Resolver) SetStrategy(dt models.DataType, s models.Strategy) {
	r.mu.Lock()
	r.strategies[dt] = s
	r.mu.Unlock()
}

// Strategy returns the strategy configured for a data type, or server_wins.
func (r *Resolver) Strategy(dt models.DataType) models.Strategy {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.strategies[dt]; ok {
		return s
	}
	return models.StrategyServerWins
}

// Resolve applies the configured strategy for c's data type.
func (r *Resolver) Resolve(c models.Conflict) models.Resolution {
	return r.resolveWith(c, r.Strategy(c.DataType))
}

// ResolveAll resolves a batch from a single detection pass. A general
// conflict covers the whole document, so field conflicts of the same data
// type are not resolved separately when one is present.
func (r *Resolver) ResolveAll(conflicts []models.Conflict) []models.Resolution {
	general := make(map[models.DataType]bool)
	for _, c := range conflicts {
		if c.Field == models.FieldGeneral {
			general[c.DataType] = true
		}
	}

	out := make([]models.Resolution, 0, len(conflicts))
	for _, c := range conflicts {
		if general[c.DataType] && c.Field != models.FieldGeneral {
			r.logger.Debugf("conflict %s on %s covered by general conflict", c.ID, c.Field)
			continue
		}
		out = append(out, r.Resolve(c))
	}
	return out
}

// Pending returns the conflicts waiting for a user choice, oldest first.
func (r *Resolver) Pending() []models.Conflict {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Conflict(nil), r.pending...)
}

// ClearPending forgets every pending conflict of the given data type.
func (r *Resolver) ClearPending(dt models.DataType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.pending[:0]
	for _, c := range r.pending {
		if c.DataType != dt {
			kept = append(kept, c)
		}
	}
	r.pending = kept
}

// ResolveChoice resolves a pending conflict with the user's choice and
// removes it from the pending list.
func (r *Resolver) ResolveChoice(id string, choice models.Choice) (models.Resolution, error) {
	var strategy models.Strategy
	switch choice {
	case models.ChoiceLocal:
		strategy = models.StrategyLocalWins
	case models.ChoiceServer:
		strategy = models.StrategyServerWins
	case models.ChoiceMerge:
		strategy = models.StrategyMergeBoth
	default:
		return models.Resolution{}, fmt.Errorf("%w: %q", ErrInvalidChoice, choice)
	}

	r.mu.Lock()
	idx := -1
	for i, c := range r.pending {
		if c.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.mu.Unlock()
		return models.Resolution{}, fmt.Errorf("%w: %s", ErrConflictNotFound, id)
	}
	c := r.pending[idx]
	r.pending = append(r.pending[:idx], r.pending[idx+1:]...)
	r.mu.Unlock()

	return r.resolveWith(c, strategy), nil
}

func (r *Resolver) resolveWith(c models.Conflict, s models.Strategy) models.Resolution {
	res := models.Resolution{Conflict: c, Strategy: s}

	switch s {
	case models.StrategyServerWins:
		res.ResolvedValue = c.ServerValue
	case models.StrategyLocalWins:
		res.ResolvedValue = c.LocalValue
	case models.StrategyMergeLatestWins:
		res.ResolvedValue = latestWins(c)
	case models.StrategyMergeBoth:
		v, err := r.mergeBoth(c)
		if err != nil {
			r.logger.Warnf("merge of %s %s failed, using latest: %v", c.DataType, c.Field, err)
			res.Strategy = models.StrategyMergeLatestWins
			res.ResolvedValue = latestWins(c)
			break
		}
		res.ResolvedValue = v
	case models.StrategyUserChoice:
		r.mu.Lock()
		r.pending = append(r.pending, c)
		r.mu.Unlock()
		res.Pending = true
	default:
		r.logger.Warnf("unknown conflict strategy %q for %s, using %s", s, c.DataType, models.StrategyServerWins)
		res.Strategy = models.StrategyServerWins
		res.ResolvedValue = c.ServerValue
	}

	return res
}

// latestWins picks the side with the later timestamp. A zero timestamp sorts
// before every real one; ties go to the server.
func latestWins(c models.Conflict) any {
	if c.LocalTimestamp.After(c.ServerTimestamp) {
		return c.LocalValue
	}
	return c.ServerValue
}

// mergeBoth combines both values of c. A panic while merging is reported as
// ErrMergeFailure.
func (r *Resolver) mergeBoth(c models.Conflict) (v any, err error) {
	defer func() {
		if p := recover(); p != nil {
			v = nil
			err = fmt.Errorf("%w: %v", ErrMergeFailure, p)
		}
	}()

	if c.DataType == models.DataSettings {
		// Local keys override server keys; an absent local key keeps the server value.
		if c.LocalValue != nil {
			return c.LocalValue, nil
		}
		return c.ServerValue, nil
	}

	switch c.Field {
	case models.FieldGeneral:
		local, lok := c.LocalValue.(*models.ProgressDocument)
		server, sok := c.ServerValue.(*models.ProgressDocument)
		if !lok || !sok {
			return nil, fmt.Errorf("%w: general conflict values are %T and %T", ErrMergeFailure, c.LocalValue, c.ServerValue)
		}
		return MergeProgress(local, server, r.now())

	case models.FieldCompletedDays:
		local, lok := c.LocalValue.(map[string]map[int]models.DayCompletion)
		server, sok := c.ServerValue.(map[string]map[int]models.DayCompletion)
		if !lok || !sok {
			return nil, fmt.Errorf("%w: completedDays values are %T and %T", ErrMergeFailure, c.LocalValue, c.ServerValue)
		}
		return mergeCompletedDays(local, server), nil

	case models.FieldCurrentStreak, models.FieldLongestStreak:
		local, lok := c.LocalValue.(int)
		server, sok := c.ServerValue.(int)
		if !lok || !sok {
			return nil, fmt.Errorf("%w: %s values are %T and %T", ErrMergeFailure, c.Field, c.LocalValue, c.ServerValue)
		}
		return max(local, server), nil

	case models.FieldTotalStudyTime:
		local, lok := c.LocalValue.(int64)
		server, sok := c.ServerValue.(int64)
		if !lok || !sok {
			return nil, fmt.Errorf("%w: totalStudyTime values are %T and %T", ErrMergeFailure, c.LocalValue, c.ServerValue)
		}
		return max(local, server), nil
	}

	return nil, fmt.Errorf("%w: no merge for field %q", ErrMergeFailure, c.Field)
}
