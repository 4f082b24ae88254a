package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"mathforge/internal/logger"
	"mathforge/internal/state"
)

// Backend pairs a provider with the model it should serve.
type Backend struct {
	Provider Provider
	Model    string
}

// Attempt records one backend try inside a failed Invoke.
type Attempt struct {
	Backend string
	Model   string
	Err     error
}

// Error aggregates every failed attempt after the fallback chain is
// exhausted.
type Error struct {
	Role     state.Role
	Attempts []Attempt
}

func (e *Error) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "gateway: all backends failed for role %s:", e.Role)
	for _, a := range e.Attempts {
		fmt.Fprintf(&sb, " [%s/%s: %v]", a.Backend, a.Model, a.Err)
	}
	return sb.String()
}

// Gateway routes model calls through an ordered backend chain per role.
// Transient failures are retried per backend before falling through to
// the next one; this budget is separate from the pipeline's semantic
// repair budget.
type Gateway struct {
	routes           map[state.Role][]Backend
	fallback         []Backend
	transientRetries int
	retryDelay       time.Duration
}

// New builds a gateway. routes may be nil; fallback must not be empty.
func New(fallback []Backend, routes map[state.Role][]Backend, transientRetries int) (*Gateway, error) {
	if len(fallback) == 0 {
		return nil, errors.New("gateway: empty fallback chain")
	}
	if transientRetries < 0 {
		transientRetries = 0
	}
	return &Gateway{
		routes:           routes,
		fallback:         fallback,
		transientRetries: transientRetries,
		retryDelay:       200 * time.Millisecond,
	}, nil
}

// SetRetryDelay overrides the inter-retry delay (tests set 0).
func (g *Gateway) SetRetryDelay(d time.Duration) { g.retryDelay = d }

func (g *Gateway) chainFor(role state.Role) []Backend {
	if bs, ok := g.routes[role]; ok && len(bs) > 0 {
		return bs
	}
	return g.fallback
}

// Invoke calls the role's backend chain in order and returns the first
// success. Every backend exhausting its transient retries yields one
// aggregated *Error.
func (g *Gateway) Invoke(ctx context.Context, role state.Role, system, user string, opts Options) (string, Usage, error) {
	chain := g.chainFor(role)
	agg := &Error{Role: role}

	for _, b := range chain {
		var lastErr error
		for try := 0; try <= g.transientRetries; try++ {
			if err := ctx.Err(); err != nil {
				return "", Usage{}, err
			}
			text, usage, err := b.Provider.Generate(ctx, b.Model, system, user, opts)
			if err == nil {
				return text, usage, nil
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return "", Usage{}, err
			}
			lastErr = err
			logger.Log.Printf("[Gateway] %s/%s attempt %d failed for role %s: %v",
				b.Provider.Name(), b.Model, try+1, role, err)
			if try < g.transientRetries && g.retryDelay > 0 {
				select {
				case <-ctx.Done():
					return "", Usage{}, ctx.Err()
				case <-time.After(g.retryDelay):
				}
			}
		}
		agg.Attempts = append(agg.Attempts, Attempt{
			Backend: b.Provider.Name(),
			Model:   b.Model,
			Err:     lastErr,
		})
	}
	return "", Usage{}, agg
}
