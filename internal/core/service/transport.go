package service

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/rl1809/dapr-shop/internal/core/domain"
)

// DefaultSendDelay is how long a simulated delivery takes.
const DefaultSendDelay = 100 * time.Millisecond

// SendFailureMessage is recorded on notifications whose delivery failed.
const SendFailureMessage = "Failed to send notification"

var ErrSendFailed = errors.New("notification delivery failed")

// Sender delivers a notification over its channel.
type Sender interface {
	Send(ctx context.Context, n domain.Notification) error
}

var successRates = map[domain.NotificationType]float64{
	domain.NotificationTypeEmail: 0.95,
	domain.NotificationTypeSMS:   0.90,
	domain.NotificationTypePush:  0.85,
}

const defaultSuccessRate = 0.90

// SimulatedSender waits for a fixed delay and then succeeds at random with a
// per-channel rate. It has no side effects.
type SimulatedSender struct {
	delay time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewSimulatedSender(delay time.Duration, seed int64) *SimulatedSender {
	return &SimulatedSender{delay: delay, rnd: rand.New(rand.NewSource(seed))}
}

// SuccessRate returns the probability that a send of type t succeeds.
func SuccessRate(t domain.NotificationType) float64 {
	if rate, ok := successRates[t]; ok {
		return rate
	}
	return defaultSuccessRate
}

func (s *SimulatedSender) Send(ctx context.Context, n domain.Notification) error {
	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.mu.Lock()
	roll := s.rnd.Float64()
	s.mu.Unlock()

	if roll < SuccessRate(n.Type) {
		return nil
	}
	return ErrSendFailed
}
