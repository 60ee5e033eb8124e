package llm

import (
	"context"
	"fmt"
	"log"
	"time"
)

// GateConfig bounds the startup health poll.
type GateConfig struct {
	Attempts int
	Interval time.Duration
}

// WaitReady blocks until the backend reports healthy, polling at a fixed
// interval. Exhausting the attempts is fatal for the caller: serving traffic
// against a dead generation backend is worse than refusing to start.
func (c *Client) WaitReady(ctx context.Context, gc GateConfig) error {
	if gc.Attempts <= 0 {
		gc.Attempts = 1
	}
	for i := 1; i <= gc.Attempts; i++ {
		if c.Healthz(ctx) {
			log.Printf("generation backend healthy after %d probe(s)", i)
			return nil
		}
		if i == gc.Attempts {
			break
		}
		log.Printf("generation backend not ready (probe %d/%d), waiting %v", i, gc.Attempts, gc.Interval)
		if err := c.sleep(ctx, gc.Interval); err != nil {
			return fmt.Errorf("llm: startup gate cancelled: %w", err)
		}
	}
	return fmt.Errorf("llm: generation backend at %s not healthy after %d attempts", c.cfg.BaseURL, gc.Attempts)
}
