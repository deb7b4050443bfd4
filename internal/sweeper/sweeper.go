// Package sweeper runs the periodic OTP eviction job for the lifetime of
// the process. Eviction is idempotent (expiry comparison), so overlapping
// runs are harmless and no backpressure handling is needed.
package sweeper

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/ADDICT-HUB/X-guru-pair/internal/otp"
)

// DefaultInterval is how often expired OTP records are evicted.
const DefaultInterval = 60 * time.Second

// Sweeper schedules otp.Store.Sweep on a fixed interval.
type Sweeper struct {
	cron  *cron.Cron
	store *otp.Store
}

// New builds a Sweeper for store. An interval <= 0 falls back to
// DefaultInterval.
func New(store *otp.Store, interval time.Duration) (*Sweeper, error) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	c := cron.New()
	s := &Sweeper{cron: c, store: store}
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", interval), s.run); err != nil {
		return nil, err
	}
	return s, nil
}

// Start launches the schedule in its own goroutine.
func (s *Sweeper) Start() { s.cron.Start() }

// Stop halts the schedule; a run already in flight completes.
func (s *Sweeper) Stop() { s.cron.Stop() }

func (s *Sweeper) run() {
	if n := s.store.Sweep(time.Now()); n > 0 {
		log.Info().Int("evicted", n).Msg("otp sweep")
	}
}
