package engine

import (
	"fmt"
	"log"
	"time"

	"github.com/unclebandit/dripsend-backend/internal/hours"
	"github.com/unclebandit/dripsend-backend/internal/model"
)

// RecoverOnStartup reconciles campaigns that were live when the previous
// process exited. Call once, after wiring, before serving commands.
func (c *Controller) RecoverOnStartup() error {
	camps, err := c.Campaigns.ListByStatus(model.CampaignStatusRunning, model.CampaignStatusPaused)
	if err != nil {
		return fmt.Errorf("recovery: list campaigns: %w", err)
	}
	if len(camps) == 0 {
		return nil
	}
	log.Printf("recovery: found %d interrupted campaigns", len(camps))

	now := time.Now()
	for _, camp := range camps {
		lastTouched := camp.CreatedAt
		if camp.UpdatedAt != nil {
			lastTouched = *camp.UpdatedAt
		}
		// A campaign stuck without progress for longer than any plausible
		// execution is not blindly restarted: its sending identity may no
		// longer exist.
		if now.Sub(lastTouched) > c.cfg.OrphanAge {
			log.Printf("recovery: campaign %s untouched since %s, marking orphaned",
				camp.ID, lastTouched.Format(time.RFC3339))
			if err := c.Campaigns.SetError(camp.ID, "orphaned after restart"); err != nil {
				log.Printf("recovery: mark orphan %s: %v", camp.ID, err)
			}
			continue
		}

		switch camp.Status {
		case model.CampaignStatusRunning:
			// The operator's intent was "running": resume unconditionally,
			// no business-hours re-evaluation before the first iteration.
			if _, err := c.Items.ResetProcessing(camp.ID); err != nil {
				log.Printf("recovery: reset processing %s: %v", camp.ID, err)
			}
			if _, err := c.Start(camp.ID, true); err != nil {
				log.Printf("recovery: resume running campaign %s: %v", camp.ID, err)
			} else {
				log.Printf("recovery: campaign %s resumed from index %d", camp.ID, camp.CurrentIndex)
			}

		case model.CampaignStatusPaused:
			bh := camp.Config.BusinessHours
			if !bh.Enabled {
				// Operator pause: waits for an explicit resume.
				continue
			}
			if hours.IsAllowedNow(bh, now) {
				if _, err := c.Start(camp.ID, false); err != nil {
					log.Printf("recovery: resume paused campaign %s: %v", camp.ID, err)
				}
			} else {
				c.scheduleResume(camp.ID, bh)
			}
		}
	}
	return nil
}
