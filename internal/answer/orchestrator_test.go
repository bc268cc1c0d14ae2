package answer

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/clonar-ai/answer-engine/config"
	"github.com/clonar-ai/answer-engine/internal/memory"
)

func TestAnswerStreamVerdictThenEnd(t *testing.T) {
	llm := &fakeLLM{generate: func(prompt, model string) (string, error) {
		switch {
		case strings.Contains(prompt, "Answer the user's question"):
			return "Hi! How can I help you today? Ask me anything.", nil
		case strings.Contains(prompt, "suggest up to 8 natural"):
			return "What kinds of questions work best?\nHow do you find hotel prices?\nCan you compare flight options?", nil
		default:
			return "", context.DeadlineExceeded
		}
	}}
	cfg := &config.Config{}
	cfg.LLM.Routing.Fallback = "m"
	o := NewOrchestrator(cfg, llm, nil, nil)

	var verdicts, ends int
	var verdict string
	var messages strings.Builder
	var final Result
	o.AnswerStream(context.Background(), Query{Text: "hello there"}, StreamEvents{
		OnVerdict: func(text string) { verdicts++; verdict = text },
		OnMessage: func(text string) { messages.WriteString(text) },
		OnEnd:     func(r Result) { ends++; final = r },
	})

	if verdicts != 1 {
		t.Fatalf("verdicts = %d, want exactly 1", verdicts)
	}
	if verdict != "Hi!" {
		t.Fatalf("verdict = %q, want first sentence", verdict)
	}
	if messages.String() != " How can I help you today? Ask me anything." {
		t.Fatalf("messages = %q", messages.String())
	}
	if ends != 1 {
		t.Fatalf("ends = %d, want exactly 1", ends)
	}
	if final.Grounding != GroundingNone {
		t.Fatalf("grounding = %s, want none for smalltalk", final.Grounding)
	}
	if final.Summary != "Hi! How can I help you today? Ask me anything." {
		t.Fatalf("summary = %q", final.Summary)
	}
	if len(final.Sources) != 0 {
		t.Fatalf("ungrounded answer must carry no sources: %+v", final.Sources)
	}
}

func TestAnswerStreamFiltersJSONEnvelope(t *testing.T) {
	llm := &fakeLLM{generate: func(prompt, model string) (string, error) {
		switch {
		case strings.Contains(prompt, "Answer the user's question"):
			return `{"summary": "Hi! Ask me anything.", "sections": []}`, nil
		default:
			return "", context.DeadlineExceeded
		}
	}}
	cfg := &config.Config{}
	cfg.LLM.Routing.Fallback = "m"
	o := NewOrchestrator(cfg, llm, nil, nil)

	var verdict string
	var streamed strings.Builder
	o.AnswerStream(context.Background(), Query{Text: "hello there"}, StreamEvents{
		OnVerdict: func(text string) { verdict = text; streamed.WriteString(text) },
		OnMessage: func(text string) { streamed.WriteString(text) },
		OnEnd:     func(Result) {},
	})

	if verdict != "Hi!" {
		t.Fatalf("verdict = %q, want the first sentence of the summary", verdict)
	}
	if streamed.String() != "Hi! Ask me anything." {
		t.Fatalf("streamed text = %q", streamed.String())
	}
	if strings.ContainsAny(streamed.String(), "{}\"") {
		t.Fatalf("JSON scaffolding reached the client: %q", streamed.String())
	}
}

func TestAnswerStreamShortAnswerStillGetsVerdict(t *testing.T) {
	llm := &fakeLLM{generate: func(prompt, model string) (string, error) {
		if strings.Contains(prompt, "Answer the user's question") {
			return "Hello", nil // no sentence terminator
		}
		return "", context.DeadlineExceeded
	}}
	o := NewOrchestrator(&config.Config{}, llm, nil, nil)

	var verdicts, ends int
	o.AnswerStream(context.Background(), Query{Text: "hi"}, StreamEvents{
		OnVerdict: func(string) { verdicts++ },
		OnEnd:     func(Result) { ends++ },
	})
	if verdicts != 1 || ends != 1 {
		t.Fatalf("verdicts = %d ends = %d, want 1 and 1", verdicts, ends)
	}
}

func TestAnswerDegradesWhenSoleProviderTimesOut(t *testing.T) {
	llm := &fakeLLM{generate: func(prompt, model string) (string, error) {
		switch {
		case strings.Contains(prompt, "retrieval planner"):
			return "", context.DeadlineExceeded // force the vertical template
		case strings.Contains(prompt, "Answer the user's question"):
			return "I could not reach live hotel data. Rome's popular districts are Trastevere and Monti.", nil
		default:
			return "", context.DeadlineExceeded
		}
	}}
	hung := &fakeProvider{
		name: "serpapi",
		caps: []string{"hotel_search"},
		search: func(ctx context.Context, capability string, args map[string]interface{}) (CapabilityResult, error) {
			<-ctx.Done()
			return CapabilityResult{}, ctx.Err()
		},
	}
	cfg := &config.Config{}
	cfg.Capabilities.StepTimeout = 50 * time.Millisecond
	o := NewOrchestrator(cfg, llm, []CapabilityProvider{hung}, nil)

	start := time.Now()
	got := o.Answer(context.Background(), Query{Text: "hotels in rome"})
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("hung provider stalled the pipeline for %v", elapsed)
	}

	if got.Summary == "" {
		t.Fatalf("degraded turn must still answer")
	}
	if len(got.Sources) != 0 {
		t.Fatalf("no retrieval succeeded, sources must be empty: %+v", got.Sources)
	}
	if len(got.Cards) != 0 {
		t.Fatalf("no retrieval succeeded, cards must be empty")
	}
	if got.Confidence != "low" {
		t.Fatalf("confidence = %q, want low", got.Confidence)
	}
	if len(got.FollowUps) != 3 {
		t.Fatalf("fallback follow-ups = %d, want exactly 3", len(got.FollowUps))
	}
	if hung.nCalled == 0 {
		t.Fatalf("provider was never attempted")
	}
	if got.Vertical != VerticalHotels || got.Grounding != GroundingFull {
		t.Fatalf("routing wrong: %s/%s", got.Vertical, got.Grounding)
	}
}

func TestAnswerCollectsMediaFromCards(t *testing.T) {
	llm := &fakeLLM{generate: func(prompt, model string) (string, error) {
		if strings.Contains(prompt, "Answer the user's question") {
			return "The Palazzo Navona is well rated.", nil
		}
		return "", context.DeadlineExceeded
	}}
	provider := &fakeProvider{
		name: "serpapi",
		caps: []string{"hotel_search"},
		search: func(ctx context.Context, capability string, args map[string]interface{}) (CapabilityResult, error) {
			return CapabilityResult{Cards: []Card{{
				ID:        "h1",
				Name:      "Palazzo Navona",
				Thumbnail: "https://img.example/h1-thumb.jpg",
				Images:    []string{"https://img.example/h1-thumb.jpg", "https://img.example/h1-room.jpg"},
			}}}, nil
		},
	}
	o := NewOrchestrator(&config.Config{}, llm, []CapabilityProvider{provider}, nil)

	got := o.Answer(context.Background(), Query{Text: "hotels in Rome"})

	want := []string{"https://img.example/h1-thumb.jpg", "https://img.example/h1-room.jpg"}
	if len(got.Media) != len(want) {
		t.Fatalf("media = %v, want %v", got.Media, want)
	}
	for i := range want {
		if got.Media[i] != want[i] {
			t.Fatalf("media[%d] = %q, want %q", i, got.Media[i], want[i])
		}
	}
	if len(got.Cards) == 0 {
		t.Fatalf("cards missing from result")
	}
}

func TestAnswerConcurrentTurnsKeepBothSlots(t *testing.T) {
	llm := &fakeLLM{generate: func(prompt, model string) (string, error) {
		if strings.Contains(prompt, "Answer the user's question") {
			return "Here is what I found.", nil
		}
		return "", context.DeadlineExceeded
	}}
	store := memory.NewInMemoryStore(time.Minute)
	o := NewOrchestrator(&config.Config{}, llm, nil, store)

	var wg sync.WaitGroup
	for _, text := range []string{"cheap nike shoes", "hotels in Rome"} {
		wg.Add(1)
		go func(text string) {
			defer wg.Done()
			o.Answer(context.Background(), Query{Text: text, SessionID: "s1"})
		}(text)
	}
	wg.Wait()

	mem, err := store.Get(context.Background(), "s1")
	if err != nil || mem == nil {
		t.Fatalf("session not persisted: mem=%v err=%v", mem, err)
	}
	if mem.Brand != "nike" {
		t.Fatalf("shopping turn's brand was dropped: %+v", mem)
	}
	if mem.City != "Rome" {
		t.Fatalf("hotel turn's city was dropped: %+v", mem)
	}
}

func TestAnswerDeepModeRerunsOnCritique(t *testing.T) {
	var synthCalls, critiqueCalls int
	llm := &fakeLLM{generate: func(prompt, model string) (string, error) {
		switch {
		case strings.Contains(prompt, "Answer the user's question"):
			synthCalls++
			if strings.Contains(prompt, "reviewer critiqued an earlier draft") {
				return "Revised answer with the missing context.", nil
			}
			return "First draft.", nil
		case strings.Contains(prompt, "Critique this answer"):
			critiqueCalls++
			return "The draft ignores the question's second half.", nil
		case strings.Contains(prompt, "suggest up to 8 natural"):
			return "", context.DeadlineExceeded
		default:
			return "", context.DeadlineExceeded
		}
	}}
	cfg := &config.Config{}
	cfg.LLM.Routing.Fallback = "m"
	cfg.LLM.Routing.Critique = "critic"
	o := NewOrchestrator(cfg, llm, nil, nil)

	got := o.Answer(context.Background(), Query{Text: "hello there", DeepMode: true})

	if critiqueCalls != 1 {
		t.Fatalf("critique calls = %d, want 1", critiqueCalls)
	}
	if synthCalls != 2 {
		t.Fatalf("synthesis calls = %d, want draft plus rerun", synthCalls)
	}
	if got.Summary != "Revised answer with the missing context." {
		t.Fatalf("rerun answer must replace the draft, got %q", got.Summary)
	}
}

func TestAnswerDeepModeKeepsDraftWhenCritiquePasses(t *testing.T) {
	var synthCalls int
	llm := &fakeLLM{generate: func(prompt, model string) (string, error) {
		switch {
		case strings.Contains(prompt, "Answer the user's question"):
			synthCalls++
			return "Good enough on the first try.", nil
		case strings.Contains(prompt, "Critique this answer"):
			return "OK", nil
		default:
			return "", context.DeadlineExceeded
		}
	}}
	cfg := &config.Config{}
	cfg.LLM.Routing.Fallback = "m"
	cfg.LLM.Routing.Critique = "critic"
	o := NewOrchestrator(cfg, llm, nil, nil)

	var streamed strings.Builder
	var ends int
	o.AnswerStream(context.Background(), Query{Text: "hello there", DeepMode: true}, StreamEvents{
		OnVerdict: func(text string) { streamed.WriteString(text) },
		OnMessage: func(text string) { streamed.WriteString(text) },
		OnEnd:     func(Result) { ends++ },
	})

	if synthCalls != 1 {
		t.Fatalf("synthesis calls = %d, want 1 when the draft stands", synthCalls)
	}
	if ends != 1 {
		t.Fatalf("ends = %d", ends)
	}
	if streamed.String() != "Good enough on the first try." {
		t.Fatalf("draft must still reach the client, got %q", streamed.String())
	}
}
