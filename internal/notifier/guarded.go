package notifier

import (
	"fmt"
	"time"

	"github.com/WilliamsMiao/Quant-Banana/internal/pkg/circuit"
)

// Guarded wraps a TextNotifier with a circuit breaker so a dead channel
// cannot stall the decision pipeline with repeated retry storms.
type Guarded struct {
	inner   TextNotifier
	breaker *circuit.CircuitBreaker
}

func NewGuarded(name string, inner TextNotifier) *Guarded {
	return &Guarded{
		inner:   inner,
		breaker: circuit.NewCircuitBreaker(name, 5, 2*time.Minute),
	}
}

func (g *Guarded) SendText(text string) error {
	if !g.breaker.Allow() {
		return fmt.Errorf("notifier circuit open, message dropped")
	}
	if err := g.inner.SendText(text); err != nil {
		g.breaker.RecordFailure()
		return err
	}
	g.breaker.RecordSuccess()
	return nil
}
