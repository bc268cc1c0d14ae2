package answer

import (
	"context"
	"time"
)

// Vertical is the domain category of a query intent.
type Vertical string

const (
	VerticalGeneral     Vertical = "general"
	VerticalShopping    Vertical = "shopping"
	VerticalHotels      Vertical = "hotels"
	VerticalMovies      Vertical = "movies"
	VerticalFlights     Vertical = "flights"
	VerticalRestaurants Vertical = "restaurants"
)

// Grounding is how much external retrieval precedes answering.
type Grounding string

const (
	GroundingNone   Grounding = "none"   // LLM-only answer
	GroundingHybrid Grounding = "hybrid" // single non-vertical web pass
	GroundingFull   Grounding = "full"   // multi-step vertical plan
)

// Turn is one prior exchange in the conversation.
type Turn struct {
	Role    string `json:"role"` // user | assistant
	Content string `json:"content"`
}

// Query represents a user's request
type Query struct {
	Text      string `json:"text"`
	History   []Turn `json:"history,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	DeepMode  bool   `json:"deep_mode,omitempty"`
}

// Filters are structured constraints extracted from the query text.
// Zero values mean "not stated".
type Filters struct {
	PriceMin  float64 `json:"price_min,omitempty"`
	PriceMax  float64 `json:"price_max,omitempty"`
	MinRating float64 `json:"min_rating,omitempty"`
	Gender    string  `json:"gender,omitempty"`
	Brand     string  `json:"brand,omitempty"`
	Category  string  `json:"category,omitempty"`
	Location  string  `json:"location,omitempty"`
}

// Chunk is a retrieved text/metadata unit used for synthesis.
type Chunk struct {
	ID        string   `json:"id"`
	Content   string   `json:"content"`
	Title     string   `json:"title,omitempty"`
	URL       string   `json:"url,omitempty"`
	Author    string   `json:"author,omitempty"`
	Thumbnail string   `json:"thumbnail,omitempty"`
	Images    []string `json:"images,omitempty"`
	Source    string   `json:"source,omitempty"` // provider tag
}

// Card is a canonical structured record surfaced for rich client rendering.
type Card struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Price     float64  `json:"price,omitempty"`
	PriceText string   `json:"price_text,omitempty"` // provider-formatted, e.g. "$129.99"
	OldPrice  float64  `json:"old_price,omitempty"`
	Rating    float64  `json:"rating,omitempty"`
	Reviews   int      `json:"reviews,omitempty"`
	Location  string   `json:"location,omitempty"`
	Images    []string `json:"images,omitempty"`
	Thumbnail string   `json:"thumbnail,omitempty"`
	Link      string   `json:"link,omitempty"`
	Tag       string   `json:"tag,omitempty"`      // e.g. "18% OFF"
	Delivery  string   `json:"delivery,omitempty"` // e.g. "Free delivery by Mon"
	Sources   []string `json:"sources,omitempty"`  // contributing provider tags
}

// Scored pairs an item with a numeric score; used across merge/dedup/rerank.
type Scored[T any] struct {
	Item  T       `json:"item"`
	Score float64 `json:"score"`
}

// Step is one unit of a retrieval plan.
type Step struct {
	ID         string                 `json:"id"`
	Capability string                 `json:"capability"`
	Args       map[string]interface{} `json:"args,omitempty"`
	RunIf      *StepCondition         `json:"run_if,omitempty"`
	Timeout    time.Duration          `json:"timeout,omitempty"`
}

// StepCondition gates a step on a prior step's output. The condition text is
// judged against the dependency's JSON output by a lightweight model before
// the step runs.
type StepCondition struct {
	Condition string `json:"condition"`
	DependsOn string `json:"depends_on"`
}

// Plan is an ordered retrieval plan for one query. Plans are created and
// discarded per query.
type Plan struct {
	Grounding Grounding `json:"grounding"`
	Vertical  Vertical  `json:"vertical"`
	Steps     []Step    `json:"steps,omitempty"`
}

// StepResult is the outcome of executing one plan step. Failures and skips
// are recorded, never raised; the plan always runs to completion.
type StepResult struct {
	StepID     string        `json:"step_id"`
	Capability string        `json:"capability"`
	Cards      []Card        `json:"cards,omitempty"`
	Chunks     []Chunk       `json:"chunks,omitempty"`
	Skipped    bool          `json:"skipped,omitempty"`
	Err        string        `json:"error,omitempty"`
	Elapsed    time.Duration `json:"elapsed,omitempty"`
}

// Empty reports whether the step produced nothing usable.
func (r StepResult) Empty() bool {
	return len(r.Cards) == 0 && len(r.Chunks) == 0
}

// Section is one titled portion of the synthesized answer.
type Section struct {
	Heading string `json:"heading"`
	Content string `json:"content"`
}

// SourceRef is a citation attached to the answer.
type SourceRef struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// Result is the final structured answer for one query.
type Result struct {
	ID             string            `json:"id"`
	Query          Query             `json:"query"`
	Summary        string            `json:"summary"`
	Sections       []Section         `json:"sections,omitempty"`
	Sources        []SourceRef       `json:"sources,omitempty"`
	Cards          map[string][]Card `json:"cards,omitempty"` // keyed by vertical
	Media          []string          `json:"media,omitempty"`
	FollowUps      []string          `json:"follow_ups,omitempty"`
	Confidence     string            `json:"confidence"` // high | medium | low
	Vertical       Vertical          `json:"vertical"`
	Grounding      Grounding         `json:"grounding"`
	DecidedBy      string            `json:"decided_by,omitempty"` // classifier layer
	Trace          []string          `json:"trace,omitempty"`
	ProcessingTime time.Duration     `json:"processing_time"`
	CreatedAt      time.Time         `json:"created_at"`
}

// LLMProvider is the contract for language-model backends.
type LLMProvider interface {
	// Generate generates text using the LLM
	Generate(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, error)

	// GenerateStream generates text, delivering increments to onDelta as they
	// arrive. The full text is returned once the stream ends.
	GenerateStream(ctx context.Context, prompt string, model string, options map[string]interface{}, onDelta func(string)) (string, error)

	// Embed generates vector embeddings for the provided inputs.
	Embed(ctx context.Context, model string, input []string) ([][]float32, error)

	// GetAvailableModels returns available models
	GetAvailableModels() []string
}

// CapabilityResult is what a provider returns for one capability call.
type CapabilityResult struct {
	Cards  []Card  `json:"cards,omitempty"`
	Chunks []Chunk `json:"chunks,omitempty"`
}

// CapabilityProvider is a named, externally-implemented fetch operation
// invokable as a plan step. Missing credentials yield an empty result plus a
// logged warning, never an error to the caller.
type CapabilityProvider interface {
	// Name returns the provider tag used for merge precedence and tracing.
	Name() string

	// Capabilities lists the capability names this provider serves.
	Capabilities() []string

	// Search executes one capability call with structured args.
	Search(ctx context.Context, capability string, args map[string]interface{}) (CapabilityResult, error)
}
