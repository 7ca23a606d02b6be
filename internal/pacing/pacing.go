// Package pacing computes the randomized delays that make a campaign's
// send pattern look human: an inter-message gap, and a longer rest after
// a randomized number of messages.
package pacing

import (
	"math/rand"
	"sync"
	"time"

	"github.com/unclebandit/dripsend-backend/internal/model"
)

// Settings is a fully-resolved pacing configuration (profile defaults
// plus per-campaign overrides).
type Settings struct {
	MessageDelayMin time.Duration
	MessageDelayMax time.Duration
	RestThreshold   model.Range // messages between rests
	RestDelayMin    time.Duration
	RestDelayMax    time.Duration
	DailyLimit      int
}

// Profile defaults. Selected once at campaign creation and immutable for
// the campaign's lifetime.
var profiles = map[model.PacingProfile]Settings{
	model.ProfileNew: {
		MessageDelayMin: 90 * time.Second,
		MessageDelayMax: 240 * time.Second,
		RestThreshold:   model.Range{Min: 8, Max: 12},
		RestDelayMin:    20 * time.Minute,
		RestDelayMax:    40 * time.Minute,
		DailyLimit:      50,
	},
	model.ProfileWarming: {
		MessageDelayMin: 45 * time.Second,
		MessageDelayMax: 120 * time.Second,
		RestThreshold:   model.Range{Min: 15, Max: 25},
		RestDelayMin:    10 * time.Minute,
		RestDelayMax:    25 * time.Minute,
		DailyLimit:      200,
	},
	model.ProfileEstablished: {
		MessageDelayMin: 20 * time.Second,
		MessageDelayMax: 60 * time.Second,
		RestThreshold:   model.Range{Min: 30, Max: 50},
		RestDelayMin:    5 * time.Minute,
		RestDelayMax:    15 * time.Minute,
		DailyLimit:      1000,
	},
}

// Merge resolves a campaign config against its profile's defaults. The
// merge is explicit field by field; unknown profiles fall back to "new",
// the most conservative table.
func Merge(cfg model.CampaignConfig) Settings {
	s, ok := profiles[cfg.Profile]
	if !ok {
		s = profiles[model.ProfileNew]
	}
	if cfg.MessageDelay != nil {
		s.MessageDelayMin = time.Duration(cfg.MessageDelay.Min) * time.Second
		s.MessageDelayMax = time.Duration(cfg.MessageDelay.Max) * time.Second
	}
	if cfg.RestThreshold != nil {
		s.RestThreshold = *cfg.RestThreshold
	}
	if cfg.RestDelay != nil {
		s.RestDelayMin = time.Duration(cfg.RestDelay.Min) * time.Minute
		s.RestDelayMax = time.Duration(cfg.RestDelay.Max) * time.Minute
	}
	if cfg.DailyLimit > 0 {
		s.DailyLimit = cfg.DailyLimit
	}
	return s
}

// Pacer produces delays for one campaign loop. A fixed seed yields a
// deterministic sequence. The throttle multiplier stretches every range
// while a recovery window is active; it is the only field touched from
// outside the loop goroutine, hence the mutex.
type Pacer struct {
	settings Settings

	mu         sync.Mutex
	rng        *rand.Rand
	multiplier float64
	restTarget int
	sinceRest  int
}

func New(settings Settings, seed int64) *Pacer {
	p := &Pacer{
		settings:   settings,
		rng:        rand.New(rand.NewSource(seed)),
		multiplier: 1.0,
	}
	p.restTarget = p.rollRestTarget()
	return p
}

// SetMultiplier applies a health throttle. Values below 1 are clamped.
func (p *Pacer) SetMultiplier(m float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if m < 1.0 {
		m = 1.0
	}
	p.multiplier = m
}

// NextMessageDelay returns a uniformly random inter-message delay.
func (p *Pacer) NextMessageDelay() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	d := p.uniform(p.settings.MessageDelayMin, p.settings.MessageDelayMax)
	return time.Duration(float64(d) * p.multiplier)
}

// MessageSent advances the rest-cycle counter.
func (p *Pacer) MessageSent() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sinceRest++
}

// ShouldRest reports whether the current rest cycle has hit its target.
// The target is re-rolled after each rest, not fixed for the campaign.
func (p *Pacer) ShouldRest() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.restTarget > 0 && p.sinceRest >= p.restTarget
}

// RestDuration returns the rest period and begins a new rest cycle.
func (p *Pacer) RestDuration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sinceRest = 0
	p.restTarget = p.rollRestTargetLocked()
	d := p.uniform(p.settings.RestDelayMin, p.settings.RestDelayMax)
	return time.Duration(float64(d) * p.multiplier)
}

// DailyLimit returns the profile's daily cap, halved while throttled.
func (p *Pacer) DailyLimit() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.multiplier > 1.0 {
		return p.settings.DailyLimit / 2
	}
	return p.settings.DailyLimit
}

// ExpectedDelay is the midpoint of the delay range with the current
// multiplier applied, used for the next-message ETA.
func (p *Pacer) ExpectedDelay() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	mid := (p.settings.MessageDelayMin + p.settings.MessageDelayMax) / 2
	return time.Duration(float64(mid) * p.multiplier)
}

func (p *Pacer) rollRestTarget() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rollRestTargetLocked()
}

func (p *Pacer) rollRestTargetLocked() int {
	t := p.settings.RestThreshold
	if t.Max <= 0 {
		return 0 // resting disabled
	}
	if t.Max <= t.Min {
		return t.Min
	}
	return t.Min + p.rng.Intn(t.Max-t.Min+1)
}

func (p *Pacer) uniform(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(p.rng.Int63n(int64(max-min+1)))
}
