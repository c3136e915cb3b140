package delivery

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"relaymirror/internal/config"
	"relaymirror/internal/constants"
)

// Pacer spaces outbound attempts per destination with a token bucket so a
// burst of submissions never hammers one webhook past its request budget.
type Pacer struct {
	mu       sync.Mutex
	limiters map[int64]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func NewPacer(cfg config.DestRateConfig) *Pacer {
	rps := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		rps = rate.Limit(constants.DefaultDestinationRate)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = constants.DefaultDestinationBurst
	}

	return &Pacer{
		limiters: make(map[int64]*rate.Limiter),
		rps:      rps,
		burst:    burst,
	}
}

// Delay reserves the next send slot for a destination and returns how long
// the caller must park the attempt; zero means send now. The reservation
// is consumed either way, so one attempt must not reserve twice.
func (p *Pacer) Delay(destinationID int64) time.Duration {
	return p.limiter(destinationID).Reserve().Delay()
}

func (p *Pacer) Forget(destinationID int64) {
	p.mu.Lock()
	delete(p.limiters, destinationID)
	p.mu.Unlock()
}

func (p *Pacer) limiter(destinationID int64) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	lim, ok := p.limiters[destinationID]
	if !ok {
		lim = rate.NewLimiter(p.rps, p.burst)
		p.limiters[destinationID] = lim
	}
	return lim
}
