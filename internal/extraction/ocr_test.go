package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/castlemilk/dietplanner/internal/retry"
)

func fastRetry(c *OCRClient) *OCRClient {
	c.retryConfig = retry.Config{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffFactor: 2}
	return c
}

func TestOCRClient_HealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("unexpected path: %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(OCRHealthResponse{Status: "healthy", Engine: "tesseract", Version: "5.3"})
	}))
	defer server.Close()

	health, err := NewOCRClient(server.URL+"/", time.Second).HealthCheck(context.Background())
	if err != nil {
		t.Fatalf("HealthCheck failed: %v", err)
	}
	if health.Status != "healthy" {
		t.Errorf("Status = %q, want %q", health.Status, "healthy")
	}
}

func TestOCRClient_Ready(t *testing.T) {
	tests := []struct {
		name    string
		status  string
		wantErr bool
	}{
		{"healthy", "healthy", false},
		{"ok", "ok", false},
		{"starting", "starting", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(OCRHealthResponse{Status: tt.status})
			}))
			defer server.Close()

			err := NewOCRClient(server.URL, time.Second).Ready(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Ready() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestOCRClient_Recognize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ocr" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Errorf("failed to parse multipart form: %v", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file part: %v", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		defer file.Close()
		body, _ := io.ReadAll(file)
		if header.Filename != "scan.png" || string(body) != "img" {
			t.Errorf("unexpected upload %q (%q)", header.Filename, body)
		}
		json.NewEncoder(w).Encode(OCRResponse{Text: "Glucose: 130", Confidence: 0.92})
	}))
	defer server.Close()

	text, err := NewOCRClient(server.URL, time.Second).Recognize(context.Background(), []byte("img"), "scan.png")
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if text != "Glucose: 130" {
		t.Errorf("text = %q", text)
	}
}

func TestOCRClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(OCRResponse{Text: "BP: 120"})
	}))
	defer server.Close()

	text, err := fastRetry(NewOCRClient(server.URL, time.Second)).Recognize(context.Background(), []byte("img"), "a.png")
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if text != "BP: 120" {
		t.Errorf("text = %q", text)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}

func TestOCRClient_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "unsupported image", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	_, err := fastRetry(NewOCRClient(server.URL, time.Second)).Recognize(context.Background(), []byte("img"), "a.png")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if CodeOf(err) != ErrOCRUnavailable {
		t.Errorf("code = %q, want %q", CodeOf(err), ErrOCRUnavailable)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
}

func TestOCRClient_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := fastRetry(NewOCRClient(url, time.Second)).Recognize(context.Background(), []byte("img"), "a.png")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
