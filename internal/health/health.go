// Package health serves the rehearsal server's health endpoints.
//
//   - /health  answers {"status":"ok"} for clients that only want to know
//     the backend is up.
//   - /healthz is the liveness check. It always returns 200.
//   - /readyz  runs every registered [Checker] in parallel and returns 200
//     only when all of them pass.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrWong99/intervox/internal/resilience"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Checker is a named readiness check. Check returns nil when the dependency
// is usable.
type Checker struct {
	// Name is the key the result is reported under (e.g. "llm", "tts").
	Name string

	// Check tests the dependency. It must respect context cancellation.
	Check func(ctx context.Context) error
}

// BreakerCheck reports a provider group ready while at least one member's
// breaker is not open. states is usually [resilience.Group.States].
func BreakerCheck(kind string, states func() map[string]resilience.State) Checker {
	return Checker{
		Name: kind,
		Check: func(context.Context) error {
			var open []string
			for name, s := range states() {
				if s != resilience.StateOpen {
					return nil
				}
				open = append(open, name)
			}
			slices.Sort(open)
			return fmt.Errorf("all %s providers unavailable: %s", kind, strings.Join(open, ", "))
		},
	}
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the health endpoints. The checker list is fixed at
// construction.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] that evaluates checkers on each /readyz request.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Health reports that the process is serving.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Healthz is the liveness check.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	h.Health(w, r)
}

// Readyz runs all checkers concurrently, each under a [checkTimeout]
// deadline derived from the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		checks = make(map[string]string, len(h.checkers))
		allOK  = true
	)
	for _, c := range h.checkers {
		wg.Go(func() {
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()
			err := c.Check(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				checks[c.Name] = "fail: " + err.Error()
				allOK = false
				return
			}
			checks[c.Name] = "ok"
		})
	}
	wg.Wait()

	res := result{Status: "ok", Checks: checks}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// Register mounts the health routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/health", h.Health)
	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
