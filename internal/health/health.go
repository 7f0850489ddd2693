// Package health evaluates and serves liveness/readiness probes.
package health

import (
	"context"
	"encoding/json"
	"net/http"
)

// Mode indicates high-level health mode.
type Mode string

const (
	// ModeHealthy indicates all required dependencies are healthy.
	ModeHealthy Mode = "healthy"
	// ModeDegraded indicates the app serves requests but a non-readiness
	// dependency is impaired.
	ModeDegraded Mode = "degraded"
	// ModeUnhealthy indicates a required dependency is unhealthy.
	ModeUnhealthy Mode = "unhealthy"
)

// Input represents dependency states used for health evaluation.
type Input struct {
	TokenStoreReady     bool
	EncryptionKeyLoaded bool
}

// Status represents evaluated application health.
type Status struct {
	Mode       Mode            `json:"mode"`
	Ready      bool            `json:"ready"`
	Components map[string]bool `json:"components"`
}

// Provider supplies current health status.
type Provider interface {
	CurrentStatus(ctx context.Context) Status
}

// StatusEvaluator evaluates health and readiness from dependency state.
type StatusEvaluator struct{}

// NewStatusEvaluator creates a health evaluator.
func NewStatusEvaluator() *StatusEvaluator {
	return &StatusEvaluator{}
}

// Evaluate evaluates readiness and mode from dependency state. A
// missing encryption key degrades the service (token endpoints fail)
// but does not fail readiness, so operators can still reach it.
func (e *StatusEvaluator) Evaluate(input Input) Status {
	components := map[string]bool{
		"token_store":    input.TokenStoreReady,
		"encryption_key": input.EncryptionKeyLoaded,
	}

	ready := input.TokenStoreReady

	mode := ModeHealthy
	if !ready {
		mode = ModeUnhealthy
	} else if !input.EncryptionKeyLoaded {
		mode = ModeDegraded
	}

	return Status{
		Mode:       mode,
		Ready:      ready,
		Components: components,
	}
}

// NewHandler returns the health HTTP handler with /livez, /readyz, and /healthz endpoints.
func NewHandler(provider Provider) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			return
		}
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		status := provider.CurrentStatus(r.Context())
		if status.Ready {
			w.WriteHeader(http.StatusOK)
			if _, err := w.Write([]byte("ready")); err != nil {
				return
			}
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		if _, err := w.Write([]byte("not ready")); err != nil {
			return
		}
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status := provider.CurrentStatus(r.Context())
		payload, err := json.Marshal(status)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			if _, writeErr := w.Write([]byte(`{"mode":"unhealthy","error":"marshal health status"}`)); writeErr != nil {
				return
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(payload); err != nil {
			return
		}
	})

	return mux
}

// StaticProvider reports a fixed status computed at startup.
type StaticProvider struct {
	status Status
}

// NewStaticProvider wraps an evaluated status in a Provider.
func NewStaticProvider(status Status) *StaticProvider {
	return &StaticProvider{status: status}
}

// CurrentStatus implements Provider.
func (p *StaticProvider) CurrentStatus(context.Context) Status {
	return p.status
}
