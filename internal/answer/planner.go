package answer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/clonar-ai/answer-engine/config"
)

// validCapabilities is the closed set of capability names a plan may invoke.
var validCapabilities = map[string]bool{
	"hotel_search":      true,
	"shopping_search":   true,
	"movie_search":      true,
	"flight_search":     true,
	"restaurant_search": true,
	"web_search":        true,
	"web_fetch":         true,
}

// Planner decides the grounding depth for a query and, for the full path,
// emits an ordered multi-step retrieval plan. Plans are created and discarded
// per query.
type Planner struct {
	cfg    *config.Config
	llm    LLMProvider
	logger *log.Logger
}

func NewPlanner(cfg *config.Config, llm LLMProvider) *Planner {
	return &Planner{
		cfg:    cfg,
		llm:    llm,
		logger: log.New(log.Writer(), "[PLANNER] ", log.LstdFlags),
	}
}

// smalltalkRe catches queries no retrieval can improve.
var smalltalkRe = regexp.MustCompile(`(?i)^\s*(hi|hello|hey|thanks?|thank you|good (morning|evening|night)|who are you|what can you do|write|compose|tell me a joke)\b`)

// DecideGrounding picks none / hybrid / full before any planning happens.
func (p *Planner) DecideGrounding(query string, cls Classification) Grounding {
	if smalltalkRe.MatchString(query) {
		return GroundingNone
	}
	if cls.Vertical != VerticalGeneral {
		return GroundingFull
	}
	return GroundingHybrid
}

// Plan builds the retrieval plan. The none path carries no steps; hybrid is a
// single web pass plus a conditional page fetch; full asks the planning model
// for a multihop plan and falls back to the vertical template when the model
// output cannot be used. Plan never fails: there is always a runnable plan.
func (p *Planner) Plan(ctx context.Context, rw Rewrite, cls Classification, grounding Grounding) Plan {
	plan := Plan{Grounding: grounding, Vertical: cls.Vertical}
	switch grounding {
	case GroundingNone:
		return plan
	case GroundingHybrid:
		plan.Steps = hybridSteps(rw, p.stepTimeout())
		return plan
	}

	if p.llm != nil {
		if steps, err := p.planWithModel(ctx, rw, cls); err == nil {
			plan.Steps = steps
			return plan
		} else {
			p.logger.Printf("model plan rejected: %v, using template", err)
		}
	}
	plan.Steps = verticalTemplate(cls.Vertical, rw, p.stepTimeout())
	return plan
}

func (p *Planner) stepTimeout() time.Duration {
	if p.cfg != nil && p.cfg.Capabilities.StepTimeout > 0 {
		return p.cfg.Capabilities.StepTimeout
	}
	return 12 * time.Second
}

func hybridSteps(rw Rewrite, timeout time.Duration) []Step {
	return []Step{
		{
			ID:         "s1",
			Capability: "web_search",
			Args:       map[string]interface{}{"query": rw.Query},
			Timeout:    timeout,
		},
		{
			ID:         "s2",
			Capability: "web_fetch",
			Args:       map[string]interface{}{"from_step": "s1"},
			RunIf: &StepCondition{
				Condition: "the search results include article links whose full text would improve the answer",
				DependsOn: "s1",
			},
			Timeout: timeout,
		},
	}
}

// verticalTemplate is the deterministic fallback plan: one vertical search,
// then a conditional web backfill when the vertical pass came back thin.
func verticalTemplate(vertical Vertical, rw Rewrite, timeout time.Duration) []Step {
	capName := "web_search"
	switch vertical {
	case VerticalHotels:
		capName = "hotel_search"
	case VerticalShopping:
		capName = "shopping_search"
	case VerticalMovies:
		capName = "movie_search"
	case VerticalFlights:
		capName = "flight_search"
	case VerticalRestaurants:
		capName = "restaurant_search"
	}

	args := map[string]interface{}{"query": rw.Query}
	if rw.Filters.Location != "" {
		args["location"] = rw.Filters.Location
	}
	if rw.Filters.PriceMax > 0 {
		args["price_max"] = rw.Filters.PriceMax
	}
	if rw.Filters.PriceMin > 0 {
		args["price_min"] = rw.Filters.PriceMin
	}
	if rw.Filters.MinRating > 0 {
		args["min_rating"] = rw.Filters.MinRating
	}
	if rw.Filters.Brand != "" {
		args["brand"] = rw.Filters.Brand
	}
	if rw.Filters.Category != "" {
		args["category"] = rw.Filters.Category
	}
	if rw.Filters.Gender != "" {
		args["gender"] = rw.Filters.Gender
	}

	return []Step{
		{ID: "s1", Capability: capName, Args: args, Timeout: timeout},
		{
			ID:         "s2",
			Capability: "web_search",
			Args:       map[string]interface{}{"query": rw.Query},
			RunIf: &StepCondition{
				Condition: "fewer than three useful results were returned",
				DependsOn: "s1",
			},
			Timeout: timeout,
		},
	}
}

func (p *Planner) planWithModel(ctx context.Context, rw Rewrite, cls Classification) ([]Step, error) {
	model := RouteModel(p.cfg.LLM.Routing, "planning")
	if model == "" {
		return nil, fmt.Errorf("no planning model routed")
	}

	filtersJSON, _ := json.Marshal(rw.Filters)
	prompt := fmt.Sprintf(`You are a retrieval planner for an answer engine.

QUERY: %s
VERTICAL: %s
FILTERS: %s

AVAILABLE CAPABILITIES:
- hotel_search: args {query, location, price_min, price_max, min_rating}
- shopping_search: args {query, brand, category, gender, price_min, price_max}
- movie_search: args {query}
- flight_search: args {query, location}
- restaurant_search: args {query, location}
- web_search: args {query}
- web_fetch: args {from_step} — reads pages found by an earlier step

PLANNING REQUIREMENTS:
1. Emit between 1 and 5 ordered steps with unique ids (s1, s2, ...).
2. A step may declare "run_if" naming a prior step id and a plain-language
   condition judged against that step's output before the step runs.
3. Steps without run_if execute concurrently; do not rely on ordering between
   independent steps.
4. Always include one step for the query's vertical when it has one.

OUTPUT FORMAT (JSON):
{
  "steps": [
    {"id": "s1", "capability": "hotel_search", "args": {"query": "..."}},
    {"id": "s2", "capability": "web_search", "args": {"query": "..."},
     "run_if": {"condition": "...", "depends_on": "s1"}}
  ]
}`, rw.Query, cls.Vertical, filtersJSON)

	response, err := p.llm.Generate(ctx, prompt, model, map[string]interface{}{
		"temperature": 0.2,
		"max_tokens":  900,
	})
	if err != nil {
		return nil, fmt.Errorf("generate plan: %w", err)
	}

	steps, err := parsePlanResponse(response, p.stepTimeout())
	if err != nil {
		return nil, err
	}
	if err := ValidateSteps(steps); err != nil {
		return nil, err
	}
	return steps, nil
}

// parsePlanResponse extracts the first balanced JSON object from the model
// response and decodes the step list.
func parsePlanResponse(response string, defaultTimeout time.Duration) ([]Step, error) {
	jsonStr := extractJSONObject(response)
	if jsonStr == "" {
		return nil, fmt.Errorf("no JSON found in response")
	}

	var raw struct {
		Steps []struct {
			ID         string                 `json:"id"`
			Capability string                 `json:"capability"`
			Args       map[string]interface{} `json:"args"`
			RunIf      *struct {
				Condition string `json:"condition"`
				DependsOn string `json:"depends_on"`
			} `json:"run_if"`
			Timeout string `json:"timeout"`
		} `json:"steps"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return nil, fmt.Errorf("parse plan JSON: %w", err)
	}

	var steps []Step
	for i, rs := range raw.Steps {
		id := strings.TrimSpace(rs.ID)
		if id == "" {
			id = fmt.Sprintf("s%d", i+1)
		}
		timeout := defaultTimeout
		if rs.Timeout != "" {
			if d, err := time.ParseDuration(rs.Timeout); err == nil {
				timeout = d
			}
		}
		step := Step{
			ID:         id,
			Capability: strings.TrimSpace(rs.Capability),
			Args:       rs.Args,
			Timeout:    timeout,
		}
		if rs.RunIf != nil && rs.RunIf.DependsOn != "" {
			step.RunIf = &StepCondition{
				Condition: rs.RunIf.Condition,
				DependsOn: rs.RunIf.DependsOn,
			}
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// extractJSONObject scans for the first balanced top-level brace pair.
func extractJSONObject(response string) string {
	start := -1
	depth := 0
	for i, ch := range response {
		if ch == '{' {
			if depth == 0 {
				start = i
			}
			depth++
		} else if ch == '}' {
			if depth > 0 {
				depth--
			}
			if depth == 0 && start != -1 {
				return response[start : i+1]
			}
		}
	}
	return ""
}

// ValidateSteps rejects plans the executor cannot run safely: unknown
// capabilities, duplicate ids, dependencies on missing or later steps.
func ValidateSteps(steps []Step) error {
	if len(steps) == 0 {
		return fmt.Errorf("plan has no steps")
	}
	seen := make(map[string]int, len(steps))
	for i, s := range steps {
		if !validCapabilities[s.Capability] {
			return fmt.Errorf("invalid capability: %s", s.Capability)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("duplicate step id: %s", s.ID)
		}
		seen[s.ID] = i
	}
	for i, s := range steps {
		if s.RunIf == nil {
			continue
		}
		dep, ok := seen[s.RunIf.DependsOn]
		if !ok {
			return fmt.Errorf("step %s depends on missing step %s", s.ID, s.RunIf.DependsOn)
		}
		if dep >= i {
			return fmt.Errorf("step %s depends on a later step %s", s.ID, s.RunIf.DependsOn)
		}
	}
	return nil
}
