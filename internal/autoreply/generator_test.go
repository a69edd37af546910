package autoreply

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func generatorServer(t *testing.T, status int, text string, got *generateRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/generate" {
			t.Errorf("path = %q, want /generate", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(generateResponse{Text: text})
	}))
}

func TestGenerate_Success(t *testing.T) {
	var got generateRequest
	srv := generatorServer(t, http.StatusOK, "The library closes at six.", &got)
	defer srv.Close()

	g := NewHTTPGenerator(GeneratorConfig{APIBase: srv.URL, Timeout: 2 * time.Second, Logger: testLogger()})
	text, err := g.Generate(context.Background(), "when does the library close", "Ms. Tran")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if text != "The library closes at six." {
		t.Fatalf("text = %q", text)
	}
	if got.Prompt != "when does the library close" || got.Context != "Ms. Tran" {
		t.Fatalf("request = %+v", got)
	}
}

func TestGenerate_NonOKStatus(t *testing.T) {
	var got generateRequest
	srv := generatorServer(t, http.StatusNotFound, "", &got)
	defer srv.Close()

	g := NewHTTPGenerator(GeneratorConfig{APIBase: srv.URL, Timeout: 2 * time.Second, Logger: testLogger()})
	if _, err := g.Generate(context.Background(), "p", "c"); err == nil {
		t.Fatal("expected error for 404")
	}
}

func TestGenerate_EmptyTextIsError(t *testing.T) {
	var got generateRequest
	srv := generatorServer(t, http.StatusOK, "   ", &got)
	defer srv.Close()

	g := NewHTTPGenerator(GeneratorConfig{APIBase: srv.URL, Timeout: 2 * time.Second, Logger: testLogger()})
	if _, err := g.Generate(context.Background(), "p", "c"); err == nil {
		t.Fatal("expected error for blank generation")
	}
}

func TestGenerate_Unreachable(t *testing.T) {
	g := NewHTTPGenerator(GeneratorConfig{APIBase: "http://127.0.0.1:1", Timeout: time.Second, Logger: testLogger()})
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if _, err := g.Generate(ctx, "p", "c"); err == nil {
		t.Fatal("expected connection error")
	}
}
