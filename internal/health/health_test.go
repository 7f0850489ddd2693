package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestStatusEvaluatorEvaluate(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		input     Input
		wantReady bool
		wantMode  Mode
	}{
		{
			name: "healthy",
			input: Input{
				TokenStoreReady:     true,
				EncryptionKeyLoaded: true,
			},
			wantReady: true,
			wantMode:  ModeHealthy,
		},
		{
			name: "degraded_without_encryption_key",
			input: Input{
				TokenStoreReady:     true,
				EncryptionKeyLoaded: false,
			},
			wantReady: true,
			wantMode:  ModeDegraded,
		},
		{
			name: "unhealthy_without_token_store",
			input: Input{
				TokenStoreReady:     false,
				EncryptionKeyLoaded: true,
			},
			wantReady: false,
			wantMode:  ModeUnhealthy,
		},
	}

	evaluator := NewStatusEvaluator()
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			status := evaluator.Evaluate(tc.input)
			if status.Ready != tc.wantReady {
				t.Errorf("Ready = %v, want %v", status.Ready, tc.wantReady)
			}
			if status.Mode != tc.wantMode {
				t.Errorf("Mode = %q, want %q", status.Mode, tc.wantMode)
			}
			if got := status.Components["token_store"]; got != tc.input.TokenStoreReady {
				t.Errorf("Components[token_store] = %v, want %v", got, tc.input.TokenStoreReady)
			}
		})
	}
}

func TestHandlerEndpoints(t *testing.T) {
	t.Parallel()

	readyStatus := NewStatusEvaluator().Evaluate(Input{
		TokenStoreReady:     true,
		EncryptionKeyLoaded: true,
	})
	notReadyStatus := NewStatusEvaluator().Evaluate(Input{
		TokenStoreReady: false,
	})

	t.Run("livez_always_ok", func(t *testing.T) {
		t.Parallel()

		handler := NewHandler(NewStaticProvider(notReadyStatus))
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/livez", nil))
		if recorder.Code != http.StatusOK {
			t.Fatalf("/livez status = %d, want 200", recorder.Code)
		}
	})

	t.Run("readyz_ready", func(t *testing.T) {
		t.Parallel()

		handler := NewHandler(NewStaticProvider(readyStatus))
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		if recorder.Code != http.StatusOK {
			t.Fatalf("/readyz status = %d, want 200", recorder.Code)
		}
		if !strings.Contains(recorder.Body.String(), "ready") {
			t.Fatalf("/readyz body = %q", recorder.Body.String())
		}
	})

	t.Run("readyz_not_ready", func(t *testing.T) {
		t.Parallel()

		handler := NewHandler(NewStaticProvider(notReadyStatus))
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		if recorder.Code != http.StatusServiceUnavailable {
			t.Fatalf("/readyz status = %d, want 503", recorder.Code)
		}
	})

	t.Run("healthz_reports_components", func(t *testing.T) {
		t.Parallel()

		handler := NewHandler(NewStaticProvider(readyStatus))
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if recorder.Code != http.StatusOK {
			t.Fatalf("/healthz status = %d, want 200", recorder.Code)
		}

		var status Status
		if err := json.Unmarshal(recorder.Body.Bytes(), &status); err != nil {
			t.Fatalf("unmarshal /healthz body: %v", err)
		}
		if status.Mode != ModeHealthy || !status.Ready {
			t.Fatalf("status = %+v, want healthy and ready", status)
		}
		if !status.Components["encryption_key"] {
			t.Fatalf("Components = %v, want encryption_key true", status.Components)
		}
	})
}

func TestStaticProviderReturnsFixedStatus(t *testing.T) {
	t.Parallel()

	status := Status{Mode: ModeDegraded, Ready: true}
	provider := NewStaticProvider(status)
	if got := provider.CurrentStatus(context.Background()); got.Mode != ModeDegraded || !got.Ready {
		t.Fatalf("CurrentStatus() = %+v, want %+v", got, status)
	}
}
