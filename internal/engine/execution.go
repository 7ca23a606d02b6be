package engine

import (
	"context"
	"sync"
	"time"

	"github.com/unclebandit/dripsend-backend/internal/model"
	"github.com/unclebandit/dripsend-backend/internal/pacing"
	"github.com/unclebandit/dripsend-backend/internal/publish"
	"github.com/unclebandit/dripsend-backend/internal/repository"
)

// Execution is the in-memory state of one live campaign loop. It mirrors
// the persisted counters at message granularity; the persisted copy only
// catches up on flush. It exists only while the loop runs.
type Execution struct {
	CampaignID string
	SenderRef  string
	TotalCount int
	StartedAt  time.Time

	pacer  *pacing.Pacer
	cancel context.CancelFunc

	mu            sync.Mutex
	paused        bool
	resumeGen     int
	stopRequested bool
	stopReason    string
	currentIndex  int
	sent          int
	failed        int
	skipped       int
	sinceFlush    int
	lastRecipient string
	lastSentAt    *time.Time
}

func newExecution(camp *model.Campaign, pacer *pacing.Pacer, cancel context.CancelFunc) *Execution {
	return &Execution{
		CampaignID:    camp.ID,
		SenderRef:     camp.SenderRef,
		TotalCount:    camp.TotalCount,
		StartedAt:     time.Now(),
		pacer:         pacer,
		cancel:        cancel,
		currentIndex:  camp.CurrentIndex,
		sent:          camp.SentCount,
		failed:        camp.FailedCount,
		skipped:       camp.SkippedCount,
		lastRecipient: camp.LastRecipient,
		lastSentAt:    camp.LastSentAt,
	}
}

// Pause sets the operator pause flag; reports whether it changed.
func (e *Execution) Pause() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.paused {
		return false
	}
	e.paused = true
	return true
}

// Resume clears the pause flag; reports whether it changed.
func (e *Execution) Resume() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.paused {
		return false
	}
	e.paused = false
	e.resumeGen++
	return true
}

// ResumeGeneration counts successful resumes. The loop compares it
// against the value it saw when persisting an hours-pause: a resume in
// between has overwritten that status and the pause must be reasserted.
func (e *Execution) ResumeGeneration() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resumeGen
}

func (e *Execution) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// RequestStop marks the execution for termination and interrupts any
// sleep, so stop latency is bounded by one select, not a delay range.
func (e *Execution) RequestStop(reason string) {
	e.mu.Lock()
	if !e.stopRequested {
		e.stopRequested = true
		e.stopReason = reason
	}
	e.mu.Unlock()
	e.cancel()
}

func (e *Execution) StopRequested() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopRequested
}

func (e *Execution) StopReason() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopReason
}

// Cancel aborts the loop's context without marking an operator stop.
// Used when replacing a stale execution.
func (e *Execution) Cancel() {
	e.cancel()
}

func (e *Execution) RecordSent(seqIndex int, recipient string, at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sent++
	e.sinceFlush++
	e.lastRecipient = recipient
	e.lastSentAt = &at
	e.advanceLocked(seqIndex)
}

func (e *Execution) RecordFailed(seqIndex int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failed++
	e.sinceFlush++
	e.advanceLocked(seqIndex)
}

func (e *Execution) RecordSkipped(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.skipped += n
	e.sinceFlush += n
}

// advanceLocked keeps currentIndex monotonically non-decreasing.
func (e *Execution) advanceLocked(seqIndex int) {
	if seqIndex+1 > e.currentIndex {
		e.currentIndex = seqIndex + 1
	}
}

func (e *Execution) SinceFlush() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sinceFlush
}

func (e *Execution) ResetSinceFlush() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sinceFlush = 0
}

func (e *Execution) LastSentAt() *time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSentAt
}

// Progress is the batched counter view written to storage.
func (e *Execution) Progress() repository.Progress {
	e.mu.Lock()
	defer e.mu.Unlock()
	return repository.Progress{
		CurrentIndex:  e.currentIndex,
		SentCount:     e.sent,
		FailedCount:   e.failed,
		SkippedCount:  e.skipped,
		LastRecipient: e.lastRecipient,
		LastSentAt:    e.lastSentAt,
	}
}

// Snapshot is the live progress view for observers and the status API.
func (e *Execution) Snapshot(status model.CampaignStatus) publish.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := publish.Snapshot{
		CampaignID:    e.CampaignID,
		Status:        string(status),
		TotalCount:    e.TotalCount,
		CurrentIndex:  e.currentIndex,
		SentCount:     e.sent,
		FailedCount:   e.failed,
		SkippedCount:  e.skipped,
		LastRecipient: e.lastRecipient,
		LastSentAt:    e.lastSentAt,
	}
	if e.paused {
		s.Status = string(model.CampaignStatusPaused)
	}
	return s
}
