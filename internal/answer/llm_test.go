package answer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/clonar-ai/answer-engine/config"
	"github.com/clonar-ai/answer-engine/internal/telemetry"
)

func TestEmbedAlignsVectorsByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// the API is free to return embeddings out of order
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": [
			{"index": 1, "embedding": [0.2, 0.2]},
			{"index": 0, "embedding": [0.1, 0.1]}
		]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(config.LLMProvider{
		APIKey:  "test-key",
		BaseURL: srv.URL,
	})

	vecs, err := p.Embed(context.Background(), "embed-model", []string{"first", "second"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("len(vecs) = %d, want 2", len(vecs))
	}
	if vecs[0][0] != 0.1 {
		t.Fatalf("vecs[0] = %v, want the input's own embedding", vecs[0])
	}
	if vecs[1][0] != 0.2 {
		t.Fatalf("vecs[1] = %v, want the input's own embedding", vecs[1])
	}
}

func TestEmbedRejectsOutOfRangeIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": [{"index": 5, "embedding": [0.1]}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(config.LLMProvider{APIKey: "test-key", BaseURL: srv.URL})
	if _, err := p.Embed(context.Background(), "embed-model", []string{"only"}); err == nil {
		t.Fatalf("expected error for index outside the input range")
	}
}

func TestObserveLLMCallCountsByOutcome(t *testing.T) {
	okBefore := testutil.ToFloat64(telemetry.LLMCalls.WithLabelValues("generate", "ok"))
	errBefore := testutil.ToFloat64(telemetry.LLMCalls.WithLabelValues("generate", "error"))

	observeLLMCall("generate", nil)
	observeLLMCall("generate", errors.New("upstream 500"))

	if got := testutil.ToFloat64(telemetry.LLMCalls.WithLabelValues("generate", "ok")); got != okBefore+1 {
		t.Fatalf("ok count = %v, want %v", got, okBefore+1)
	}
	if got := testutil.ToFloat64(telemetry.LLMCalls.WithLabelValues("generate", "error")); got != errBefore+1 {
		t.Fatalf("error count = %v, want %v", got, errBefore+1)
	}
}
