package generation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/thiskanishk/healthassist-cds/interfaces"
	"github.com/thiskanishk/healthassist-cds/logging"
)

func init() {
	logging.InitLogger("")
}

func completionServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestCompleteSuccess(t *testing.T) {
	var got chatRequest
	srv := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("unexpected auth header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Primary medication recommendations:\n\nLisinopril 10 mg"}}]}`))
	})

	c := NewClient(srv.URL+"/", "secret")
	out, err := c.Complete(context.Background(), "hello", interfaces.GenerationOptions{Model: "test-model", MaxTokens: 50})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "Primary medication recommendations:\n\nLisinopril 10 mg" {
		t.Errorf("unexpected completion %q", out)
	}
	if got.Model != "test-model" || got.MaxTokens != 50 {
		t.Errorf("options not forwarded: %+v", got)
	}
	if got.Temperature != 0.3 {
		t.Errorf("expected default temperature, got %v", got.Temperature)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "hello" {
		t.Errorf("unexpected messages %+v", got.Messages)
	}
}

func TestCompleteErrorKinds(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		timeout  time.Duration
		wantKind ErrorKind
	}{
		{
			name: "quota",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":{"message":"rate limit reached","type":"requests"}}`))
			},
			wantKind: KindQuota,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			wantKind: KindUpstream,
		},
		{
			name: "unauthorized",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
			},
			wantKind: KindUpstream,
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`not json`))
			},
			wantKind: KindUpstream,
		},
		{
			name: "no choices",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"choices":[]}`))
			},
			wantKind: KindEmpty,
		},
		{
			name: "blank content",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"   "}}]}`))
			},
			wantKind: KindEmpty,
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-time.After(2 * time.Second):
				case <-r.Context().Done():
				}
			},
			timeout:  50 * time.Millisecond,
			wantKind: KindTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := completionServer(t, tt.handler)
			c := NewClient(srv.URL, "")
			_, err := c.Complete(context.Background(), "p", interfaces.GenerationOptions{Timeout: tt.timeout})
			if err == nil {
				t.Fatal("expected error")
			}
			var ge *Error
			if !errors.As(err, &ge) {
				t.Fatalf("expected *Error, got %T: %v", err, err)
			}
			if ge.Kind != tt.wantKind {
				t.Errorf("expected kind %s, got %s (%v)", tt.wantKind, ge.Kind, err)
			}
		})
	}
}

func TestCompleteNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, "").Complete(context.Background(), "p", interfaces.GenerationOptions{})
	if KindOf(err) != KindNetwork {
		t.Fatalf("expected network kind, got %s (%v)", KindOf(err), err)
	}
}

func TestKindOf(t *testing.T) {
	if KindOf(context.DeadlineExceeded) != KindTimeout {
		t.Error("deadline should map to timeout")
	}
	if KindOf(errors.New("boom")) != KindNetwork {
		t.Error("unclassified errors should map to network")
	}
	wrapped := errors.Join(errors.New("ctx"), newError(KindQuota, 429, errors.New("slow down")))
	if KindOf(wrapped) != KindQuota {
		t.Error("wrapped generation errors keep their kind")
	}
}
