// Package engine drives bulk-messaging campaigns: one goroutine per
// active campaign, paced to mimic human sending, gated by business hours,
// and throttled or halted by the health governor.
package engine

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	appErrors "github.com/unclebandit/dripsend-backend/internal/errors"
	"github.com/unclebandit/dripsend-backend/internal/health"
	"github.com/unclebandit/dripsend-backend/internal/hours"
	"github.com/unclebandit/dripsend-backend/internal/metrics"
	"github.com/unclebandit/dripsend-backend/internal/model"
	"github.com/unclebandit/dripsend-backend/internal/pacing"
	"github.com/unclebandit/dripsend-backend/internal/publish"
	"github.com/unclebandit/dripsend-backend/internal/repository"
	"github.com/unclebandit/dripsend-backend/internal/sender"
)

const stopByOperator = "stopped by operator"

// Config tunes the execution loop.
type Config struct {
	HealthCheckEvery  int           // governor consult frequency, in messages
	FlushEvery        int           // counter flush frequency, in messages
	FlushInterval     time.Duration // counter flush frequency, wall clock
	PausePollInterval time.Duration
	BackpressureWait  time.Duration
	OrphanAge         time.Duration

	// Seed overrides the pacing RNG seed; zero means time-derived.
	Seed int64
}

func DefaultConfig() Config {
	return Config{
		HealthCheckEvery:  10,
		FlushEvery:        10,
		FlushInterval:     5 * time.Second,
		PausePollInterval: 3 * time.Second,
		BackpressureWait:  2 * time.Second,
		OrphanAge:         24 * time.Hour,
	}
}

// Controller owns the campaign state machine and all live loops.
type Controller struct {
	Campaigns repository.CampaignRepositoryInterface
	Items     repository.QueueItemRepositoryInterface
	Sender    sender.Sender
	Governor  *health.Governor
	Publisher publish.Publisher
	Metrics   metrics.Sink
	Registry  *Registry

	cfg    Config
	root   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewController(
	campaigns repository.CampaignRepositoryInterface,
	items repository.QueueItemRepositoryInterface,
	snd sender.Sender,
	governor *health.Governor,
	publisher publish.Publisher,
	sink metrics.Sink,
	cfg Config,
) *Controller {
	if cfg.HealthCheckEvery < 1 {
		cfg.HealthCheckEvery = 1
	}
	if cfg.FlushEvery < 1 {
		cfg.FlushEvery = 1
	}
	root, cancel := context.WithCancel(context.Background())
	return &Controller{
		Campaigns: campaigns,
		Items:     items,
		Sender:    snd,
		Governor:  governor,
		Publisher: publisher,
		Metrics:   sink,
		Registry:  NewRegistry(),
		cfg:       cfg,
		root:      root,
		cancel:    cancel,
	}
}

// StartResult reports what start did: either a loop is now running, or
// the campaign was deferred to the next allowed sending instant.
type StartResult struct {
	Status       model.CampaignStatus
	ScheduledFor *time.Time
}

// Start begins (or defers) execution of a campaign. forceStart bypasses
// the business-hours gate; crash recovery uses it to honor the operator's
// original "running" intent.
func (c *Controller) Start(campaignID string, forceStart bool) (*StartResult, error) {
	camp, err := c.Campaigns.GetByID(campaignID)
	if err != nil {
		return nil, err
	}

	if exec := c.Registry.Get(campaignID); exec != nil {
		// A live loop exists. Only stale state (persisted idle/paused,
		// e.g. a loop that missed its own teardown) may be replaced.
		if camp.Status != model.CampaignStatusIdle && camp.Status != model.CampaignStatusPaused {
			return nil, appErrors.NewExecutionExists(campaignID)
		}
		log.Printf("engine: replacing stale execution for campaign %s", campaignID)
		exec.Cancel()
		c.Registry.Remove(campaignID)
	}

	switch camp.Status {
	case model.CampaignStatusCompleted, model.CampaignStatusStopped:
		return nil, appErrors.NewInvalidTransition(campaignID, string(camp.Status), "start")
	}

	bh := camp.Config.BusinessHours
	if !forceStart && bh.Enabled && !hours.IsAllowedNow(bh, time.Now()) {
		next := hours.NextAllowedInstant(bh, time.Now())
		if err := c.Campaigns.UpdateStatus(campaignID, model.CampaignStatusPaused); err != nil {
			return nil, err
		}
		c.scheduleResume(campaignID, bh)
		c.Publisher.PublishNotification("campaign_deferred", "Campaign deferred",
			"outside business hours, scheduled for "+next.Format(time.RFC3339), camp.OwnerRef)
		log.Printf("engine: campaign %s deferred until %s", campaignID, next.Format(time.RFC3339))
		return &StartResult{Status: model.CampaignStatusPaused, ScheduledFor: &next}, nil
	}

	return c.launch(camp)
}

// launch marks the campaign running, registers the execution, and spawns
// the loop goroutine.
func (c *Controller) launch(camp *model.Campaign) (*StartResult, error) {
	c.Registry.CancelResumeTimer(camp.ID)

	seed := c.cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano() ^ rand.Int63()
	}
	pacer := pacing.New(pacing.Merge(camp.Config), seed)

	ctx, cancel := context.WithCancel(c.root)
	exec := newExecution(camp, pacer, cancel)
	if !c.Registry.Register(camp.ID, exec) {
		cancel()
		return nil, appErrors.NewExecutionExists(camp.ID)
	}

	if err := c.Campaigns.UpdateStatus(camp.ID, model.CampaignStatusRunning); err != nil {
		c.Registry.Remove(camp.ID)
		cancel()
		return nil, err
	}

	c.Metrics.CampaignStarted()
	c.Metrics.ActiveCampaignsSet(c.Registry.Count())
	log.Printf("engine: campaign %s running (%d recipients, profile %s)",
		camp.ID, camp.TotalCount, camp.Config.Profile)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.runLoop(ctx, camp, exec)
	}()

	return &StartResult{Status: model.CampaignStatusRunning}, nil
}

// Pause suspends a campaign. Idempotent. Without a live loop (e.g. after
// a restart, before recovery ran) it updates the persisted status
// directly.
func (c *Controller) Pause(campaignID string) error {
	c.Registry.CancelResumeTimer(campaignID)

	if exec := c.Registry.Get(campaignID); exec != nil {
		if exec.Pause() {
			if err := c.Campaigns.UpdateStatus(campaignID, model.CampaignStatusPaused); err != nil {
				return err
			}
			c.flush(exec, model.CampaignStatusPaused)
			log.Printf("engine: campaign %s paused by operator", campaignID)
		}
		return nil
	}

	camp, err := c.Campaigns.GetByID(campaignID)
	if err != nil {
		return err
	}
	switch camp.Status {
	case model.CampaignStatusPaused:
		return nil
	case model.CampaignStatusRunning, model.CampaignStatusIdle:
		return c.Campaigns.UpdateStatus(campaignID, model.CampaignStatusPaused)
	default:
		return appErrors.NewInvalidTransition(campaignID, string(camp.Status), "pause")
	}
}

// Resume clears the pause flag, or re-invokes Start when no live loop
// exists. Idempotent.
func (c *Controller) Resume(campaignID string) error {
	if exec := c.Registry.Get(campaignID); exec != nil {
		if exec.Resume() {
			if err := c.Campaigns.UpdateStatus(campaignID, model.CampaignStatusRunning); err != nil {
				return err
			}
			c.flush(exec, model.CampaignStatusRunning)
			log.Printf("engine: campaign %s resumed", campaignID)
		}
		return nil
	}
	_, err := c.Start(campaignID, false)
	return err
}

// Stop terminates a campaign: every pending and processing item becomes
// skipped, distinct from a session error which leaves them pending.
func (c *Controller) Stop(campaignID string) error {
	c.Registry.CancelResumeTimer(campaignID)

	if exec := c.Registry.Get(campaignID); exec != nil {
		exec.RequestStop(stopByOperator)
		return nil
	}

	camp, err := c.Campaigns.GetByID(campaignID)
	if err != nil {
		return err
	}
	switch camp.Status {
	case model.CampaignStatusStopped:
		return nil
	case model.CampaignStatusCompleted:
		return appErrors.NewInvalidTransition(campaignID, string(camp.Status), "stop")
	}

	n, err := c.Items.BulkSkipRemaining(campaignID, stopByOperator)
	if err != nil {
		return err
	}
	c.Metrics.MessagesSkipped(n)
	if err := c.Campaigns.SetStopped(campaignID, stopByOperator); err != nil {
		return err
	}
	if err := c.reconcileCounters(campaignID); err != nil {
		log.Printf("engine: counter reconcile for %s: %v", campaignID, err)
	}
	log.Printf("engine: campaign %s stopped without live loop (%d items skipped)", campaignID, n)
	return nil
}

// LiveSnapshot returns the in-memory progress of a live execution.
func (c *Controller) LiveSnapshot(campaignID string) (publish.Snapshot, bool) {
	exec := c.Registry.Get(campaignID)
	if exec == nil {
		return publish.Snapshot{}, false
	}
	return exec.Snapshot(model.CampaignStatusRunning), true
}

// NextMessageETA estimates when the next message goes out, derived from
// the last send plus the expected pacing delay. Only meaningful for a
// live loop.
func (c *Controller) NextMessageETA(campaignID string) (*time.Time, bool) {
	exec := c.Registry.Get(campaignID)
	if exec == nil {
		return nil, false
	}
	last := exec.LastSentAt()
	base := time.Now()
	if last != nil {
		base = *last
	}
	eta := base.Add(exec.pacer.ExpectedDelay())
	if eta.Before(time.Now()) {
		eta = time.Now()
	}
	return &eta, true
}

// scheduleResume arms a cancellable one-shot timer for the next allowed
// sending instant. On fire it re-checks the window (config may have
// changed) and either starts the campaign or re-arms.
func (c *Controller) scheduleResume(campaignID string, bh model.BusinessHours) {
	next := hours.NextAllowedInstant(bh, time.Now())
	wait := time.Until(next)
	if wait < 0 {
		wait = 0
	}
	timer := time.AfterFunc(wait, func() {
		camp, err := c.Campaigns.GetByID(campaignID)
		if err != nil {
			log.Printf("engine: auto-resume load %s: %v", campaignID, err)
			return
		}
		if camp.Status != model.CampaignStatusPaused {
			return
		}
		if !hours.IsAllowedNow(camp.Config.BusinessHours, time.Now()) {
			c.scheduleResume(campaignID, camp.Config.BusinessHours)
			return
		}
		if _, err := c.Start(campaignID, false); err != nil {
			log.Printf("engine: auto-resume start %s: %v", campaignID, err)
		}
	})
	c.Registry.SetResumeTimer(campaignID, timer)
	log.Printf("engine: campaign %s auto-resume armed for %s", campaignID, next.Format(time.RFC3339))
}

// reconcileCounters syncs persisted counters with actual item counts,
// used on the no-live-loop stop path where no execution state exists.
func (c *Controller) reconcileCounters(campaignID string) error {
	counts, err := c.Items.CountsByStatus(campaignID)
	if err != nil {
		return err
	}
	sent := counts[model.QueueItemStatusSent]
	failed := counts[model.QueueItemStatusFailed]
	skipped := counts[model.QueueItemStatusSkipped]
	return c.Campaigns.UpdateProgress(campaignID, repository.Progress{
		CurrentIndex: sent + failed + skipped,
		SentCount:    sent,
		FailedCount:  failed,
		SkippedCount: skipped,
	})
}

// Shutdown cancels every live loop and waits for them to flush and exit,
// or for ctx to expire. Campaigns stay persisted as running/paused so the
// next boot's recovery picks them up.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.Registry.CancelAllResumeTimers()
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
