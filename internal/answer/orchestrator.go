package answer

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/clonar-ai/answer-engine/config"
	"github.com/clonar-ai/answer-engine/internal/memory"
	"github.com/clonar-ai/answer-engine/internal/telemetry"
)

var orchestratorTracer = otel.Tracer("answer/orchestrator")

// StreamEvents receives the streaming callbacks for one turn: Verdict fires
// once with the first sentence, Message fires for each later text
// increment, End fires exactly once with the final result. Nothing follows
// End.
type StreamEvents struct {
	OnVerdict func(text string)
	OnMessage func(text string)
	OnEnd     func(result Result)
}

// Orchestrator wires the pipeline stages together: classify, rewrite,
// plan, execute, merge, rerank, synthesize, correct, follow up. Every path
// terminates in a well formed, possibly degraded, Result.
type Orchestrator struct {
	cfg        *config.Config
	llm        LLMProvider
	classifier *Classifier
	rewriter   *Rewriter
	planner    *Planner
	executor   *Executor
	reranker   *Reranker
	synth      *Synthesizer
	corrector  *Corrector
	followUps  *FollowUpRanker
	store      memory.Store
	logger     *log.Logger

	sessionMu sync.Mutex
	sessions  map[string]*sync.Mutex
}

func NewOrchestrator(cfg *config.Config, llm LLMProvider, providers []CapabilityProvider, store memory.Store) *Orchestrator {
	routing := cfg.LLM.Routing
	embedder := NewEmbedder(llm, RouteModel(routing, "embedding"))
	return &Orchestrator{
		cfg:        cfg,
		llm:        llm,
		classifier: NewClassifier(cfg, llm, embedder),
		rewriter:   NewRewriter(),
		planner:    NewPlanner(cfg, llm),
		executor:   NewExecutor(providers, llm, RouteModel(routing, "light")),
		reranker:   NewReranker(cfg.Rerank, llm, RouteModel(routing, "rerank"), embedder),
		synth:      NewSynthesizer(llm, RouteModel(routing, "synthesis"), RouteModel(routing, "critique")),
		corrector:  NewCorrector(llm, RouteModel(routing, "light")),
		followUps:  NewFollowUpRanker(llm, RouteModel(routing, "light")),
		store:      store,
		logger:     log.New(log.Writer(), "[ORCH] ", log.LstdFlags),
		sessions:   make(map[string]*sync.Mutex),
	}
}

// Answer processes one query end to end.
func (o *Orchestrator) Answer(ctx context.Context, q Query) Result {
	return o.run(ctx, q, nil)
}

// AnswerStream processes one query, streaming text through ev as it is
// generated. Exactly one End event is emitted, even on failure.
func (o *Orchestrator) AnswerStream(ctx context.Context, q Query, ev StreamEvents) {
	var verdictSent bool
	var buf strings.Builder
	onDelta := func(delta string) {
		if verdictSent {
			if ev.OnMessage != nil {
				ev.OnMessage(delta)
			}
			return
		}
		buf.WriteString(delta)
		if i := sentenceEnd(buf.String()); i > 0 {
			first := buf.String()[:i]
			rest := buf.String()[i:]
			verdictSent = true
			if ev.OnVerdict != nil {
				ev.OnVerdict(first)
			}
			if rest != "" && ev.OnMessage != nil {
				ev.OnMessage(rest)
			}
		}
	}

	// The synthesis model streams a JSON envelope; only its readable text
	// may reach the client.
	filter := newSynthDeltaFilter(onDelta)
	result := o.run(ctx, q, filter.feed)

	// A short answer may never cross a sentence boundary, and fallback
	// paths produce a summary without streaming at all.
	if !verdictSent && ev.OnVerdict != nil {
		if buf.Len() > 0 {
			ev.OnVerdict(buf.String())
		} else if result.Summary != "" {
			ev.OnVerdict(result.Summary)
		}
	}
	if ev.OnEnd != nil {
		ev.OnEnd(result)
	}
}

func (o *Orchestrator) run(ctx context.Context, q Query, onDelta func(string)) Result {
	start := time.Now()
	ctx, span := orchestratorTracer.Start(ctx, "orchestrator.run")
	defer span.End()

	if o.cfg.General.MaxProcessingTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.General.MaxProcessingTime)
		defer cancel()
	}

	if q.SessionID != "" {
		// Memory is read-modify-write per session; concurrent turns on the
		// same id must not drop each other's remembered slots.
		lock := o.sessionLock(q.SessionID)
		lock.Lock()
		defer lock.Unlock()
	}

	mem := o.loadMemory(ctx, q.SessionID)
	rw := o.rewriter.Rewrite(q, mem)
	cls := o.classifier.Classify(ctx, rw.Query, "")
	grounding := o.planner.DecideGrounding(rw.Query, cls)

	span.SetAttributes(
		attribute.String("vertical", string(cls.Vertical)),
		attribute.String("grounding", string(grounding)),
		attribute.String("decided_by", cls.Layer),
	)
	o.logger.Printf("query %q vertical=%s grounding=%s layer=%s healed=%v",
		rw.Query, cls.Vertical, grounding, cls.Layer, rw.Healed)

	var pass pipelinePass
	if q.DeepMode {
		// The draft pass does not stream; only the surviving pass reaches
		// the client.
		pass = o.retrieveAndWrite(ctx, rw, cls, grounding, "", nil)
		if critique := o.synth.Critique(ctx, rw.Query, pass.synthesis, pass.chunks); critique != "" {
			o.logger.Printf("deep mode: critique found gaps, rerunning pipeline")
			span.AddEvent("deep_rerun", trace.WithAttributes(attribute.Int("critique_len", len(critique))))
			pass = o.retrieveAndWrite(ctx, rw, cls, grounding, critique, onDelta)
		} else if onDelta != nil {
			onDelta(pass.synthesis.Summary)
		}
	} else {
		pass = o.retrieveAndWrite(ctx, rw, cls, grounding, "", onDelta)
	}

	result := o.assemble(ctx, q, rw, cls, grounding, pass, mem, start)
	o.saveMemory(ctx, q.SessionID, mem, rw, cls, result.Summary)

	telemetry.QueriesTotal.WithLabelValues(string(cls.Vertical), string(grounding)).Inc()
	telemetry.QueryDuration.Observe(time.Since(start).Seconds())
	return result
}

// pipelinePass holds the retrieval and synthesis output of one pass.
// Deep mode may produce two; the later one wins.
type pipelinePass struct {
	cards     []Card
	chunks    []Scored[Chunk]
	synthesis Synthesis
	noDocs    bool
	trace     []string
}

func (o *Orchestrator) retrieveAndWrite(ctx context.Context, rw Rewrite, cls Classification, grounding Grounding, guidance string, onDelta func(string)) pipelinePass {
	var pass pipelinePass

	if grounding != GroundingNone {
		plan := o.planner.Plan(ctx, rw, cls, grounding)
		pass.trace = append(pass.trace, fmt.Sprintf("plan: %d steps", len(plan.Steps)))

		results := o.executor.Execute(ctx, plan)
		var cardSets [][]Card
		var rawChunks []Chunk
		for _, step := range plan.Steps {
			res, ok := results[step.ID]
			if !ok {
				continue
			}
			if res.Skipped {
				pass.trace = append(pass.trace, fmt.Sprintf("step %s skipped", step.ID))
				continue
			}
			if res.Err != "" {
				telemetry.StepFailures.WithLabelValues(res.Capability).Inc()
				pass.trace = append(pass.trace, fmt.Sprintf("step %s failed: %s", step.ID, res.Err))
			}
			if len(res.Cards) > 0 {
				cardSets = append(cardSets, res.Cards)
			}
			rawChunks = append(rawChunks, res.Chunks...)
		}

		pass.cards = MergeCards(cardSets...)
		if max := o.cfg.Capabilities.MaxResults; max > 0 && len(pass.cards) > max {
			pass.cards = pass.cards[:max]
		}
		chunks := DeduplicateChunks(rawChunks)

		if o.reranker.ShouldSkip(rw.Query, len(chunks)) {
			pass.trace = append(pass.trace, "rerank skipped")
			for _, c := range chunks {
				pass.chunks = append(pass.chunks, Scored[Chunk]{Item: c, Score: 1})
			}
		} else {
			pass.chunks = o.reranker.RerankChunks(ctx, rw.Query, chunks)
			pass.trace = append(pass.trace, fmt.Sprintf("rerank kept %d of %d", len(pass.chunks), len(chunks)))
		}
	}

	pass.noDocs = grounding != GroundingNone && len(pass.cards) == 0 && len(pass.chunks) == 0
	if pass.noDocs {
		pass.trace = append(pass.trace, "no documents, answering ungrounded")
	}

	pass.synthesis = o.synth.Synthesize(ctx, rw.Query, pass.chunks, guidance, onDelta)
	if pass.noDocs || grounding == GroundingNone {
		pass.synthesis.Sources = nil
	}
	return pass
}

func (o *Orchestrator) assemble(ctx context.Context, q Query, rw Rewrite, cls Classification, grounding Grounding, pass pipelinePass, mem *memory.Memory, start time.Time) Result {
	cards := o.corrector.Correct(ctx, renderSynthesis(pass.synthesis), pass.cards)

	var followUps []string
	if pass.noDocs {
		followUps = o.followUps.Fallback(cls.Vertical, mem)
	} else {
		followUps = o.followUps.Rank(ctx, rw.Query, cls.Vertical, mem, pass.synthesis.Summary)
	}

	result := Result{
		ID:             uuid.NewString(),
		Query:          q,
		Summary:        pass.synthesis.Summary,
		Sections:       pass.synthesis.Sections,
		Sources:        pass.synthesis.Sources,
		Media:          collectMedia(cards, pass.chunks),
		FollowUps:      followUps,
		Confidence:     confidenceBand(grounding, pass),
		Vertical:       cls.Vertical,
		Grounding:      grounding,
		DecidedBy:      cls.Layer,
		Trace:          pass.trace,
		ProcessingTime: time.Since(start),
		CreatedAt:      time.Now(),
	}
	if len(cards) > 0 {
		result.Cards = map[string][]Card{string(cls.Vertical): cards}
	}
	return result
}

// collectMedia gathers card and chunk imagery for the result's media strip,
// deduplicated in first-seen order.
func collectMedia(cards []Card, chunks []Scored[Chunk]) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(u string) {
		if u != "" && !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	for _, c := range cards {
		add(c.Thumbnail)
		for _, img := range c.Images {
			add(img)
		}
	}
	for _, c := range chunks {
		add(c.Item.Thumbnail)
		for _, img := range c.Item.Images {
			add(img)
		}
	}
	return out
}

// confidenceBand is a coarse high/medium/low judgement from how much
// grounding the answer actually has.
func confidenceBand(grounding Grounding, pass pipelinePass) string {
	switch {
	case pass.noDocs:
		return "low"
	case grounding == GroundingNone:
		return "medium"
	case len(pass.chunks)+len(pass.cards) >= 5:
		return "high"
	default:
		return "medium"
	}
}

func (o *Orchestrator) sessionLock(id string) *sync.Mutex {
	o.sessionMu.Lock()
	defer o.sessionMu.Unlock()
	if l, ok := o.sessions[id]; ok {
		return l
	}
	l := &sync.Mutex{}
	o.sessions[id] = l
	return l
}

func (o *Orchestrator) loadMemory(ctx context.Context, sessionID string) *memory.Memory {
	if sessionID == "" || o.store == nil {
		return &memory.Memory{}
	}
	mem, err := o.store.Get(ctx, sessionID)
	if err != nil {
		o.logger.Printf("session %s load failed: %v", sessionID, err)
		return &memory.Memory{}
	}
	if mem == nil {
		return &memory.Memory{}
	}
	return mem
}

func (o *Orchestrator) saveMemory(ctx context.Context, sessionID string, mem *memory.Memory, rw Rewrite, cls Classification, summary string) {
	if sessionID == "" || o.store == nil {
		return
	}
	mem.Merge(memory.Memory{
		Domain:     string(cls.Vertical),
		Brand:      rw.Filters.Brand,
		Category:   rw.Filters.Category,
		Gender:     rw.Filters.Gender,
		City:       rw.Filters.Location,
		PriceMin:   rw.Filters.PriceMin,
		PriceMax:   rw.Filters.PriceMax,
		LastQuery:  rw.Query,
		LastAnswer: truncateForPrompt(summary, 500),
	})
	if err := o.store.Put(ctx, sessionID, *mem, o.cfg.Session.TTL); err != nil {
		o.logger.Printf("session %s save failed: %v", sessionID, err)
	}
}

// sentenceEnd returns the index just past the first sentence terminator,
// or 0 when none is present yet.
func sentenceEnd(s string) int {
	for i, r := range s {
		if r == '.' || r == '!' || r == '?' {
			return i + 1
		}
	}
	return 0
}
