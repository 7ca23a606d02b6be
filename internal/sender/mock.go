package sender

import (
	"context"
	"math/rand"
	"sync"
)

// MockSender simulates a transport for local development and the seeder.
// A deterministic seed produces a reproducible failure pattern.
type MockSender struct {
	mu          sync.Mutex
	rng         *rand.Rand
	SuccessRate float64
}

func NewMockSender(seed int64, successRate float64) *MockSender {
	return &MockSender{
		rng:         rand.New(rand.NewSource(seed)),
		SuccessRate: successRate,
	}
}

func (m *MockSender) Send(ctx context.Context, recipientRef, payload string) error {
	if err := ctx.Err(); err != nil {
		return NewSendError(CategoryConnection, err.Error())
	}
	m.mu.Lock()
	r := m.rng.Float64()
	m.mu.Unlock()
	if r < m.SuccessRate {
		return nil
	}
	return NewSendError(CategoryRecipientInvalid, "mock delivery failure")
}

var _ Sender = (*MockSender)(nil)
