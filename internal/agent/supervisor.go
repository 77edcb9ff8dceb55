package agent

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/danmuck/capbridge/internal/bridge"
	"github.com/danmuck/capbridge/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

// Link is the bridge surface the supervisor drives.
type Link interface {
	Connect(ctx context.Context) error
	Reconnect(ctx context.Context) error
	Status() bridge.Status
}

// Supervisor keeps a Link connected, redialing with exponential backoff
// after every loss.
type Supervisor struct {
	link     Link
	backoff  session.BackoffConfig
	rng      *rand.Rand
	kick     chan struct{}
	attempts atomic.Int64
}

func NewSupervisor(link Link, backoff session.BackoffConfig) *Supervisor {
	return &Supervisor{
		link:    link,
		backoff: backoff,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		kick:    make(chan struct{}, 1),
	}
}

// Notify is an OnStatus listener. It never blocks.
func (s *Supervisor) Notify(st bridge.Status) {
	if st != bridge.StatusDisconnected {
		return
	}
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Attempts counts redials since the last successful connection.
func (s *Supervisor) Attempts() int64 { return s.attempts.Load() }

// Run connects and then redials until ctx ends or the link is closed.
func (s *Supervisor) Run(ctx context.Context) error {
	attempt := 0
	err := s.link.Connect(ctx)
	for {
		switch {
		case errors.Is(err, bridge.ErrClosed):
			return nil
		case err == nil && s.link.Status() == bridge.StatusConnected:
			attempt = 0
			s.attempts.Store(0)
			select {
			case <-ctx.Done():
				return nil
			case <-s.kick:
			}
			if s.link.Status() == bridge.StatusConnected {
				continue
			}
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			log.Warn().Int("attempt", attempt).Err(err).Msg("agent.Supervisor connect failed")
		}

		attempt++
		s.attempts.Store(int64(attempt))
		delay := session.NextBackoffDelay(s.backoff, attempt, s.rng)
		log.Debug().Int("attempt", attempt).Dur("delay", delay).Msg("agent.Supervisor backoff")
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		err = s.link.Reconnect(ctx)
	}
}
