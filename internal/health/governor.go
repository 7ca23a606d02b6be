// Package health throttles or halts campaigns when the sending
// identity's delivery health degrades, and tracks time-boxed recovery
// windows per identity.
package health

import (
	"context"
	"log"
	"sync"
	"time"
)

type Level string

const (
	LevelNone     Level = "none"
	LevelMild     Level = "mild"
	LevelModerate Level = "moderate"
	LevelSevere   Level = "severe"
	LevelCritical Level = "critical"
)

// Decision is what the execution loop acts on.
type Decision struct {
	Level       Level
	Score       int
	ShouldStop  bool
	ShouldPause bool
	PauseFor    time.Duration
	Multiplier  float64
	Reason      string
}

// RecoveryWindow is the throttled state applied to a sending identity
// after a poor reading. It expires lazily.
type RecoveryWindow struct {
	Level      Level
	Multiplier float64
	StartedAt  time.Time
	ExpiresAt  time.Time
}

type cachedScore struct {
	score     int
	fetchedAt time.Time
}

// Config tunes the governor.
type Config struct {
	CacheTTL time.Duration
}

// Governor holds the per-identity recovery windows and score cache.
// Campaigns sharing a sending identity go through the same entry, so all
// map access is under the mutex.
type Governor struct {
	source Source
	cfg    Config
	clock  func() time.Time

	mu      sync.Mutex
	windows map[string]*RecoveryWindow
	scores  map[string]cachedScore
}

func NewGovernor(source Source, cfg Config) *Governor {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Minute
	}
	return &Governor{
		source:  source,
		cfg:     cfg,
		clock:   time.Now,
		windows: make(map[string]*RecoveryWindow),
		scores:  make(map[string]cachedScore),
	}
}

// Recovery window durations per level.
var windowDurations = map[Level]time.Duration{
	LevelMild:     2 * time.Hour,
	LevelModerate: 6 * time.Hour,
	LevelSevere:   12 * time.Hour,
	LevelCritical: 24 * time.Hour,
}

// CheckAndThrottle is the single entry point the execution loop calls.
// It may create or refresh a recovery window; calling it redundantly or
// concurrently for the same identity is safe, and within the cache TTL it
// is idempotent.
func (g *Governor) CheckAndThrottle(ctx context.Context, identity string) Decision {
	score, err := g.score(ctx, identity)
	if err != nil {
		// A broken health source must not take campaigns down with it.
		log.Printf("health: score lookup failed for %s: %v, assuming healthy", identity, err)
		return Decision{Level: LevelNone, Score: 100, Multiplier: g.activeMultiplier(identity)}
	}

	d := classify(score)

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock()
	if d.Level != LevelNone {
		w := g.windows[identity]
		if w == nil || w.Level != d.Level || now.After(w.ExpiresAt) {
			g.windows[identity] = &RecoveryWindow{
				Level:      d.Level,
				Multiplier: d.Multiplier,
				StartedAt:  now,
				ExpiresAt:  now.Add(windowDurations[d.Level]),
			}
			log.Printf("health: identity %s entered %s recovery (score %d)", identity, d.Level, score)
		}
	}

	// A live window keeps throttling even after the score recovers; it
	// only lets go once it expires.
	if w := g.windowLocked(identity, now); w != nil && w.Multiplier > d.Multiplier {
		d.Multiplier = w.Multiplier
	}
	return d
}

// Window returns the active recovery window for an identity, or nil.
func (g *Governor) Window(identity string) *RecoveryWindow {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.windowLocked(identity, g.clock())
}

// windowLocked applies lazy expiry. Caller holds g.mu.
func (g *Governor) windowLocked(identity string, now time.Time) *RecoveryWindow {
	w := g.windows[identity]
	if w == nil {
		return nil
	}
	if now.After(w.ExpiresAt) {
		delete(g.windows, identity)
		log.Printf("health: identity %s recovery window expired", identity)
		return nil
	}
	return w
}

func (g *Governor) activeMultiplier(identity string) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if w := g.windowLocked(identity, g.clock()); w != nil {
		return w.Multiplier
	}
	return 1.0
}

func (g *Governor) score(ctx context.Context, identity string) (int, error) {
	g.mu.Lock()
	if c, ok := g.scores[identity]; ok && g.clock().Sub(c.fetchedAt) < g.cfg.CacheTTL {
		g.mu.Unlock()
		return c.score, nil
	}
	g.mu.Unlock()

	score, err := g.source.GetHealthScore(ctx, identity)
	if err != nil {
		return 0, err
	}

	g.mu.Lock()
	g.scores[identity] = cachedScore{score: score, fetchedAt: g.clock()}
	g.mu.Unlock()
	return score, nil
}

// classify applies the thresholds in order; first match wins.
func classify(score int) Decision {
	switch {
	case score < 30:
		return Decision{
			Level:      LevelCritical,
			Score:      score,
			ShouldStop: true,
			Multiplier: 3.0,
			Reason:     "health_critical",
		}
	case score < 50:
		return Decision{
			Level:       LevelSevere,
			Score:       score,
			ShouldPause: true,
			PauseFor:    2 * time.Hour,
			Multiplier:  2.5,
			Reason:      "health_severe",
		}
	case score < 70:
		return Decision{
			Level:       LevelModerate,
			Score:       score,
			ShouldPause: true,
			PauseFor:    time.Hour,
			Multiplier:  2.0,
			Reason:      "health_moderate",
		}
	case score < 85:
		return Decision{Level: LevelMild, Score: score, Multiplier: 1.5, Reason: "health_mild"}
	default:
		return Decision{Level: LevelNone, Score: score, Multiplier: 1.0}
	}
}
