package ollamaclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/triepod-ai/ollama-research-mcp/internal/research/client"
)

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("path = %q, want /api/tags", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"models": []map[string]any{
				{"name": "llama3:8b", "size": 4_500_000_000, "digest": "abc123"},
				{"name": "", "size": 0}, // malformed entry, must be skipped
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	listings, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(listings) != 1 {
		t.Fatalf("len(listings) = %d, want 1", len(listings))
	}
	if listings[0].Name != "llama3:8b" || listings[0].SizeBytes != 4_500_000_000 {
		t.Errorf("unexpected listing: %+v", listings[0])
	}
}

func TestDescribeModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/show" {
			t.Errorf("path = %q, want /api/show", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"details": map[string]any{
				"parameter_size":     "8.0B",
				"quantization_level": "Q4_0",
				"family":             "llama",
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	details, err := c.DescribeModel(context.Background(), "llama3:8b")
	if err != nil {
		t.Fatalf("DescribeModel: %v", err)
	}
	if details.ParameterSize != "8.0B" || details.Family != "llama" {
		t.Errorf("unexpected details: %+v", details)
	}
}

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["stream"] != false {
			t.Errorf("stream = %v, want false", req["stream"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"response":   "hello world",
			"done":       true,
			"eval_count": 2,
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	res, err := c.Generate(context.Background(), "llama3:8b", "hi", client.GenerateOptions{Temperature: 0.7, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Text != "hello world" || res.Tokens != 2 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestGenerate_FallsBackToWordCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"response": "four simple words here",
			"done":     true,
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	res, err := c.Generate(context.Background(), "m", "hi", client.GenerateOptions{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Tokens != 4 {
		t.Errorf("Tokens = %d, want 4 (word-count fallback)", res.Tokens)
	}
}

func TestGenerate_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Generate(context.Background(), "missing", "hi", client.GenerateOptions{})
	if err == nil || !ErrModelNotFound(err) {
		t.Fatalf("expected ErrModelNotFound, got %v", err)
	}
}

func TestGenerate_TimeoutMapsToTimeoutError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		_ = json.NewEncoder(w).Encode(map[string]any{"response": "late"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Generate(context.Background(), "m", "hi", client.GenerateOptions{Timeout: 5 * time.Millisecond})
	if err == nil || !ErrTimeout(err) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestPull_DrainsNDJSONAndReturnsFinalStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/pull" {
			t.Errorf("path = %q, want /api/pull", r.URL.Path)
		}
		lines := []string{
			`{"status":"pulling manifest"}`,
			`{"status":"downloading","completed":50,"total":100}`,
			`{"status":"success"}`,
		}
		for _, l := range lines {
			_, _ = w.Write([]byte(l + "\n"))
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	status, err := c.Pull(context.Background(), "llama3:8b", PullOptions{})
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if status != "success" {
		t.Errorf("status = %q, want success", status)
	}
}

func TestPull_ReturnsErrorFromFinalLine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"pulling manifest"}` + "\n"))
		_, _ = w.Write([]byte(`{"error":"model not found"}` + "\n"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Pull(context.Background(), "missing:8b", PullOptions{})
	if err == nil {
		t.Fatalf("expected an error")
	}
}

func TestRemove(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %q, want DELETE", r.Method)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{})
	}))
	defer srv.Close()

	c := New(srv.URL)
	if err := c.Remove(context.Background(), "llama3:8b"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
}

func TestChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %q, want /api/chat", r.URL.Path)
		}
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["stream"] != false {
			t.Errorf("stream = %v, want false", req["stream"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message":    map[string]any{"role": "assistant", "content": "hi there"},
			"done":       true,
			"eval_count": 3,
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	res, err := c.Chat(context.Background(), "llama3:8b", []ChatMessage{{Role: "user", Content: "hello"}}, client.GenerateOptions{})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if res.Text != "hi there" || res.Tokens != 3 {
		t.Errorf("unexpected result: %+v", res)
	}
}
