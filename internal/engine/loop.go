package engine

import (
	"context"
	"log"
	"time"

	"github.com/unclebandit/dripsend-backend/internal/hours"
	"github.com/unclebandit/dripsend-backend/internal/model"
	"github.com/unclebandit/dripsend-backend/internal/sender"
)

// runLoop is the execution loop for one campaign. It owns the campaign
// exclusively until it returns; the deferred registry removal is what
// allows a later restart.
func (c *Controller) runLoop(ctx context.Context, camp *model.Campaign, exec *Execution) {
	defer func() {
		c.Registry.Remove(camp.ID)
		c.Metrics.ActiveCampaignsSet(c.Registry.Count())
	}()

	proactive := camp.Config.Proactive()
	bh := camp.Config.BusinessHours

	// Force a health check before the first message.
	msgsSinceHealth := c.cfg.HealthCheckEvery
	lastFlush := time.Now()
	firstMessage := true
	hoursPaused := false
	hoursGen := 0

	// Daily cap bookkeeping. In-memory only: a restart opens a fresh day,
	// which errs on the permissive side.
	curDay := time.Now().Format("2006-01-02")
	sentToday := 0
	limitHold := false

	for {
		if exec.StopRequested() {
			c.finishStopped(camp, exec)
			return
		}
		if ctx.Err() != nil {
			c.suspend(camp, exec)
			return
		}

		// 1. Health governor, every N messages.
		if proactive && msgsSinceHealth >= c.cfg.HealthCheckEvery {
			msgsSinceHealth = 0
			d := c.Governor.CheckAndThrottle(ctx, camp.SenderRef)
			c.Metrics.HealthCheck(string(d.Level))
			exec.pacer.SetMultiplier(d.Multiplier)
			if d.ShouldStop {
				c.finishError(camp, exec, d.Reason)
				return
			}
			if d.ShouldPause {
				log.Printf("engine: campaign %s pausing %s (health %s, score %d)",
					camp.ID, d.PauseFor, d.Level, d.Score)
				c.Publisher.PublishNotification("health_pause", "Sending paused",
					"health level "+string(d.Level), camp.OwnerRef)
				// Suspends this campaign's goroutine only.
				sleepCtx(ctx, d.PauseFor)
				msgsSinceHealth = c.cfg.HealthCheckEvery // re-check on wake
				continue
			}
		}

		// 2. Operator pause: poll, never dequeue.
		if exec.Paused() {
			sleepCtx(ctx, c.cfg.PausePollInterval)
			continue
		}

		// 3. Business-hours gate (proactive profile).
		if proactive && bh.Enabled {
			if !hours.IsAllowedNow(bh, time.Now()) {
				// An operator pause/resume cycle between polls persists
				// RUNNING over the hours-pause, so a plain latch is not
				// enough: reassert PAUSED whenever a resume happened since
				// it was last written.
				if gen := exec.ResumeGeneration(); !hoursPaused || gen != hoursGen {
					hoursPaused = true
					hoursGen = gen
					if err := c.Campaigns.UpdateStatus(camp.ID, model.CampaignStatusPaused); err != nil {
						log.Printf("engine: persist hours-pause for %s: %v", camp.ID, err)
					}
					c.flush(exec, model.CampaignStatusPaused)
					log.Printf("engine: campaign %s waiting for business hours (next %s)",
						camp.ID, hours.NextAllowedInstant(bh, time.Now()).Format(time.RFC3339))
				}
				// Poll rather than sleep to the boundary, so config
				// changes and stops are observed promptly.
				sleepCtx(ctx, c.cfg.PausePollInterval)
				continue
			}
			if hoursPaused {
				hoursPaused = false
				if err := c.Campaigns.UpdateStatus(camp.ID, model.CampaignStatusRunning); err != nil {
					log.Printf("engine: persist hours-resume for %s: %v", camp.ID, err)
				}
			}
		}

		// 4. Daily cap. Halved by the governor while a recovery window is
		// active.
		if limit := exec.pacer.DailyLimit(); limit > 0 {
			if today := time.Now().Format("2006-01-02"); today != curDay {
				curDay = today
				sentToday = 0
			}
			if sentToday >= limit {
				if !limitHold {
					limitHold = true
					log.Printf("engine: campaign %s reached daily limit of %d", camp.ID, limit)
					c.Publisher.PublishNotification("daily_limit", "Daily limit reached",
						camp.Name+" holds until tomorrow", camp.OwnerRef)
				}
				sleepCtx(ctx, c.cfg.PausePollInterval)
				continue
			}
			limitHold = false
		}

		// 5. Claim the next pending item.
		item, err := c.Items.ClaimNext(camp.ID)
		if err != nil {
			log.Printf("engine: claim for %s: %v", camp.ID, err)
			sleepCtx(ctx, c.cfg.BackpressureWait)
			continue
		}
		if item == nil {
			counts, err := c.Items.CountsByStatus(camp.ID)
			if err != nil {
				log.Printf("engine: counts for %s: %v", camp.ID, err)
				sleepCtx(ctx, c.cfg.BackpressureWait)
				continue
			}
			if counts[model.QueueItemStatusProcessing] == 0 {
				c.finishCompleted(camp, exec)
				return
			}
			// In-flight items remain: backpressure, not failure.
			sleepCtx(ctx, c.cfg.BackpressureWait)
			continue
		}

		// 6. Inter-message delay, skipped for the very first message so
		// the campaign visibly starts immediately.
		if firstMessage {
			firstMessage = false
		} else {
			d := exec.pacer.NextMessageDelay()
			c.Metrics.MessageDelayObserve(d)
			if !sleepCtx(ctx, d) {
				continue // stop/shutdown observed within one sleep
			}
		}

		// 7. Send.
		sendErr := c.Sender.Send(ctx, item.RecipientRef, item.Payload)
		if ctx.Err() != nil {
			// Cancelled mid-send: let the loop head decide stop vs suspend.
			continue
		}
		now := time.Now()
		if sendErr == nil {
			if err := c.Items.MarkSent(item.ID, now); err != nil {
				log.Printf("engine: mark sent %s: %v", item.ID, err)
			}
			exec.RecordSent(item.SequenceIndex, item.RecipientRef, now)
			exec.pacer.MessageSent()
			sentToday++
			c.Metrics.MessageSent()
		} else if sender.Classify(sendErr) == sender.SeverityRecipient {
			if err := c.Items.MarkFailed(item.ID, sendErr.Error()); err != nil {
				log.Printf("engine: mark failed %s: %v", item.ID, err)
			}
			exec.RecordFailed(item.SequenceIndex)
			c.Metrics.MessageFailed(string(sender.CategoryOf(sendErr)))
		} else {
			// Session-level: the transport or identity is broken, not
			// this recipient. Remaining items stay pending for a later
			// operator-driven restart.
			c.Metrics.MessageFailed(string(sender.CategoryOf(sendErr)))
			log.Printf("engine: campaign %s session error: %v", camp.ID, sendErr)
			c.finishError(camp, exec, "session_error:"+string(sender.CategoryOf(sendErr)))
			return
		}
		msgsSinceHealth++

		// 8. Batched persistence: every K messages or T seconds.
		if exec.SinceFlush() >= c.cfg.FlushEvery || time.Since(lastFlush) >= c.cfg.FlushInterval {
			c.flush(exec, model.CampaignStatusRunning)
			lastFlush = time.Now()
		}

		// 9. Rest period.
		if exec.pacer.ShouldRest() {
			d := exec.pacer.RestDuration()
			c.Metrics.RestObserve(d)
			log.Printf("engine: campaign %s resting for %s", camp.ID, d)
			c.Publisher.PublishNotification("campaign_rest", "Campaign resting",
				"resting for "+d.String(), camp.OwnerRef)
			sleepCtx(ctx, d)
		}
	}
}

// flush writes the in-memory counters to storage and pushes a progress
// snapshot to observers.
func (c *Controller) flush(exec *Execution, status model.CampaignStatus) {
	if err := c.Campaigns.UpdateProgress(exec.CampaignID, exec.Progress()); err != nil {
		log.Printf("engine: flush progress for %s: %v", exec.CampaignID, err)
	}
	c.Publisher.PublishProgress(exec.CampaignID, exec.Snapshot(status))
	exec.ResetSinceFlush()
}

func (c *Controller) finishCompleted(camp *model.Campaign, exec *Execution) {
	c.flush(exec, model.CampaignStatusCompleted)
	if err := c.Campaigns.UpdateStatus(camp.ID, model.CampaignStatusCompleted); err != nil {
		log.Printf("engine: persist completed for %s: %v", camp.ID, err)
	}
	c.Publisher.PublishNotification("campaign_completed", "Campaign completed",
		camp.Name+" finished", camp.OwnerRef)
	c.Metrics.CampaignFinished(string(model.CampaignStatusCompleted))
	log.Printf("engine: campaign %s completed", camp.ID)
}

func (c *Controller) finishStopped(camp *model.Campaign, exec *Execution) {
	reason := exec.StopReason()
	if reason == "" {
		reason = stopByOperator
	}
	n, err := c.Items.BulkSkipRemaining(camp.ID, reason)
	if err != nil {
		log.Printf("engine: bulk skip for %s: %v", camp.ID, err)
	}
	exec.RecordSkipped(n)
	c.Metrics.MessagesSkipped(n)
	c.flush(exec, model.CampaignStatusStopped)
	if err := c.Campaigns.SetStopped(camp.ID, reason); err != nil {
		log.Printf("engine: persist stopped for %s: %v", camp.ID, err)
	}
	c.Metrics.CampaignFinished(string(model.CampaignStatusStopped))
	log.Printf("engine: campaign %s stopped (%d items skipped)", camp.ID, n)
}

func (c *Controller) finishError(camp *model.Campaign, exec *Execution, reason string) {
	// Distinct from stop: pending items stay pending, resumable after the
	// operator intervenes.
	if _, err := c.Items.ResetProcessing(camp.ID); err != nil {
		log.Printf("engine: reset processing for %s: %v", camp.ID, err)
	}
	c.flush(exec, model.CampaignStatusError)
	if err := c.Campaigns.SetError(camp.ID, reason); err != nil {
		log.Printf("engine: persist error for %s: %v", camp.ID, err)
	}
	c.Publisher.PublishNotification("campaign_error", "Campaign halted", reason, camp.OwnerRef)
	c.Metrics.CampaignFinished(string(model.CampaignStatusError))
	log.Printf("engine: campaign %s errored: %s", camp.ID, reason)
}

// suspend handles process shutdown: flush progress, return the in-flight
// item to pending, and leave the persisted status untouched so recovery
// resumes the campaign on the next boot.
func (c *Controller) suspend(camp *model.Campaign, exec *Execution) {
	if _, err := c.Items.ResetProcessing(camp.ID); err != nil {
		log.Printf("engine: reset processing for %s: %v", camp.ID, err)
	}
	if err := c.Campaigns.UpdateProgress(camp.ID, exec.Progress()); err != nil {
		log.Printf("engine: suspend flush for %s: %v", camp.ID, err)
	}
	log.Printf("engine: campaign %s suspended for shutdown", camp.ID)
}

// sleepCtx sleeps for d or until ctx is cancelled; reports whether the
// full duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
