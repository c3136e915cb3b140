package delivery

import (
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"relaymirror/internal/config"
	"relaymirror/internal/constants"
	"relaymirror/pkg/circuitbreaker"
)

// BreakerRegistry hands out one circuit breaker per destination, created
// lazily with the configured consecutive-failure threshold and recovery
// timeout. Breakers survive config edits; deleting a destination drops its
// breaker so a recreated one starts with a clean history.
type BreakerRegistry struct {
	mu        sync.Mutex
	breakers  map[int64]*circuitbreaker.Wrapper
	threshold uint32
	recovery  time.Duration
}

func NewBreakerRegistry(cfg config.BreakerConfig) *BreakerRegistry {
	threshold := cfg.Threshold
	if threshold == 0 {
		threshold = constants.DefaultBreakerThreshold
	}
	recovery := cfg.RecoveryTimeout
	if recovery <= 0 {
		recovery = constants.DefaultBreakerRecovery
	}

	return &BreakerRegistry{
		breakers:  make(map[int64]*circuitbreaker.Wrapper),
		threshold: threshold,
		recovery:  recovery,
	}
}

func (r *BreakerRegistry) For(destinationID int64) *circuitbreaker.Wrapper {
	r.mu.Lock()
	defer r.mu.Unlock()

	br, ok := r.breakers[destinationID]
	if !ok {
		name := fmt.Sprintf("destination-%d", destinationID)
		br = circuitbreaker.NewWrapper(circuitbreaker.ForDestination(name, r.threshold, r.recovery))
		r.breakers[destinationID] = br
	}
	return br
}

func (r *BreakerRegistry) Forget(destinationID int64) {
	r.mu.Lock()
	delete(r.breakers, destinationID)
	r.mu.Unlock()
}

// State reports a destination's breaker state. The second return is false
// when no attempt has created a breaker for it yet.
func (r *BreakerRegistry) State(destinationID int64) (gobreaker.State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	br, ok := r.breakers[destinationID]
	if !ok {
		return gobreaker.StateClosed, false
	}
	return br.State(), true
}
