package answer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var executorTracer trace.Tracer = otel.Tracer("answer-engine/internal/answer/executor")

// Executor runs a retrieval plan. Steps without conditions fan out
// concurrently; a conditional step waits only on its named dependency, asks a
// lightweight model whether its condition holds against that step's JSON
// output, and is skipped when it does not. Provider failures and timeouts
// yield empty results; the plan always runs to completion.
type Executor struct {
	providers  map[string][]CapabilityProvider // capability -> precedence-ordered providers
	llm        LLMProvider
	lightModel string
	logger     *log.Logger
}

// NewExecutor indexes providers by the capabilities they serve, preserving
// registration order as merge precedence.
func NewExecutor(providers []CapabilityProvider, llm LLMProvider, lightModel string) *Executor {
	index := make(map[string][]CapabilityProvider)
	for _, p := range providers {
		for _, capName := range p.Capabilities() {
			index[capName] = append(index[capName], p)
		}
	}
	return &Executor{
		providers:  index,
		llm:        llm,
		lightModel: lightModel,
		logger:     log.New(log.Writer(), "[EXEC] ", log.LstdFlags),
	}
}

// Execute runs every step of the plan and returns results keyed by step id.
// The map always contains one entry per step.
func (e *Executor) Execute(ctx context.Context, plan Plan) map[string]StepResult {
	results := make(map[string]StepResult, len(plan.Steps))
	if len(plan.Steps) == 0 {
		return results
	}

	ctx, span := executorTracer.Start(ctx, "answer.execute_plan",
		trace.WithAttributes(attribute.Int("plan.step_count", len(plan.Steps))))
	defer span.End()

	var mu sync.Mutex
	done := make(map[string]chan struct{}, len(plan.Steps))
	for _, s := range plan.Steps {
		done[s.ID] = make(chan struct{})
	}

	var wg sync.WaitGroup
	for _, step := range plan.Steps {
		wg.Add(1)
		go func(s Step) {
			defer wg.Done()
			defer close(done[s.ID])

			result := StepResult{StepID: s.ID, Capability: s.Capability}

			if s.RunIf != nil {
				select {
				case <-done[s.RunIf.DependsOn]:
				case <-ctx.Done():
					result.Err = ctx.Err().Error()
					mu.Lock()
					results[s.ID] = result
					mu.Unlock()
					return
				}
				mu.Lock()
				dep := results[s.RunIf.DependsOn]
				mu.Unlock()
				depJSON, _ := json.Marshal(dep)
				if !EvaluateCondition(ctx, e.llm, e.lightModel, s.RunIf.Condition, depJSON) {
					result.Skipped = true
					mu.Lock()
					results[s.ID] = result
					mu.Unlock()
					e.logger.Printf("step %s skipped: condition %q not met", s.ID, s.RunIf.Condition)
					return
				}
			}

			start := time.Now()
			cards, chunks, errText := e.runStep(ctx, s)
			result.Cards = cards
			result.Chunks = chunks
			result.Err = errText
			result.Elapsed = time.Since(start)

			mu.Lock()
			results[s.ID] = result
			mu.Unlock()

			e.logger.Printf("step %s (%s) done in %v: %d cards, %d chunks",
				s.ID, s.Capability, result.Elapsed, len(cards), len(chunks))
		}(step)
	}
	wg.Wait()

	return results
}

// runStep calls every provider serving the capability concurrently under the
// step timeout. Provider errors are recorded, never raised.
func (e *Executor) runStep(ctx context.Context, s Step) ([]Card, []Chunk, string) {
	providers := e.providers[s.Capability]
	if len(providers) == 0 {
		return nil, nil, fmt.Sprintf("no provider for capability %s", s.Capability)
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 12 * time.Second
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		idx    int
		result CapabilityResult
		err    error
	}
	ch := make(chan outcome, len(providers))
	for i, p := range providers {
		go func(idx int, p CapabilityProvider) {
			res, err := p.Search(stepCtx, s.Capability, s.Args)
			ch <- outcome{idx: idx, result: res, err: err}
		}(i, p)
	}

	// reassemble in precedence order so merge input is deterministic
	byIdx := make([]outcome, len(providers))
	for range providers {
		o := <-ch
		byIdx[o.idx] = o
	}
	var cards []Card
	var chunks []Chunk
	var errs []string
	for idx, o := range byIdx {
		if o.err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", providers[idx].Name(), o.err))
			continue
		}
		cards = append(cards, o.result.Cards...)
		chunks = append(chunks, o.result.Chunks...)
	}
	return cards, chunks, strings.Join(errs, "; ")
}

// EvaluateCondition judges a plain-language step condition against the
// dependency's JSON output. It is a pure function of its inputs and
// fail-open: when no model is available or the call errs, the step runs.
func EvaluateCondition(ctx context.Context, llm LLMProvider, model, condition string, dependencyOutput []byte) bool {
	condition = strings.TrimSpace(condition)
	if condition == "" {
		return true
	}
	if llm == nil || model == "" {
		return true
	}

	prompt := fmt.Sprintf(`Given this JSON output of a completed retrieval step:

%s

Does the following condition hold? %q

Answer YES or NO only.`, truncateForPrompt(string(dependencyOutput), 4000), condition)

	raw, err := llm.Generate(ctx, prompt, model, map[string]interface{}{
		"temperature": 0.0,
		"max_tokens":  4,
	})
	if err != nil {
		return true
	}
	answer := strings.ToUpper(strings.TrimSpace(raw))
	return !strings.HasPrefix(answer, "NO")
}

func truncateForPrompt(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
