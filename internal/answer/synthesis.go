package answer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
)

// Synthesizer turns reranked chunks into the final written answer. It asks
// the synthesis model for a JSON document with a summary, sections, and
// citation indices, and falls back to a generic answer with no citations
// when the model fails.
type Synthesizer struct {
	llm      LLMProvider
	model    string
	critique string
	logger   *log.Logger
}

func NewSynthesizer(llm LLMProvider, synthModel, critiqueModel string) *Synthesizer {
	return &Synthesizer{
		llm:      llm,
		model:    synthModel,
		critique: critiqueModel,
		logger:   log.New(log.Writer(), "[SYNTH] ", log.LstdFlags),
	}
}

type synthesisDoc struct {
	Summary  string `json:"summary"`
	Sections []struct {
		Heading   string `json:"heading"`
		Content   string `json:"content"`
		Citations []int  `json:"citations,omitempty"`
	} `json:"sections"`
}

// Synthesis is the written portion of a result.
type Synthesis struct {
	Summary  string
	Sections []Section
	Sources  []SourceRef
}

// Synthesize writes the answer from evidence. Guidance, when non-empty, is
// appended to the prompt (deep mode passes reviewer critique through it).
// When onDelta is non-nil the model's output streams to it as it arrives.
// Failures never propagate; the caller always gets a usable answer.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, chunks []Scored[Chunk], guidance string, onDelta func(string)) Synthesis {
	if s.llm == nil || s.model == "" {
		return s.fallback(query)
	}

	prompt := s.buildPrompt(query, chunks)
	if guidance != "" {
		prompt += fmt.Sprintf(`

A reviewer critiqued an earlier draft of this answer. Address every point:
%s`, guidance)
	}

	var raw string
	var err error
	if onDelta != nil {
		raw, err = s.llm.GenerateStream(ctx, prompt, s.model, synthOptions(), onDelta)
	} else {
		raw, err = s.llm.Generate(ctx, prompt, s.model, synthOptions())
	}
	if err != nil {
		s.logger.Printf("synthesis failed, using fallback: %v", err)
		return s.fallback(query)
	}

	if syn, ok := s.parse(raw, chunks); ok {
		return syn
	}
	// Unstructured but non-empty output is still an answer.
	if strings.TrimSpace(raw) != "" {
		return Synthesis{Summary: strings.TrimSpace(raw), Sources: citeAll(chunks)}
	}
	return s.fallback(query)
}

// Critique judges a draft against the evidence with the critique model. A
// non-empty return lists substantive problems and means the pipeline should
// rerun; empty means the draft stands.
func (s *Synthesizer) Critique(ctx context.Context, query string, draft Synthesis, chunks []Scored[Chunk]) string {
	if s.llm == nil || s.critique == "" {
		return ""
	}
	var ev strings.Builder
	for i, c := range chunks {
		if i >= 10 {
			break
		}
		fmt.Fprintf(&ev, "[%d] %s\n", i, truncateForPrompt(chunkText(c.Item), 300))
	}
	prompt := fmt.Sprintf(`Critique this answer against the evidence. List only substantive problems:
claims the evidence does not support, important evidence the answer ignores,
or parts that do not address the question. If the answer is adequate, reply
with exactly "OK".

QUESTION: %s

ANSWER:
%s

EVIDENCE:
%s`, query, truncateForPrompt(renderSynthesis(draft), 2500), ev.String())

	raw, err := s.llm.Generate(ctx, prompt, s.critique, map[string]interface{}{
		"temperature": 0.2,
		"max_tokens":  500,
	})
	if err != nil {
		s.logger.Printf("critique failed: %v", err)
		return ""
	}
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "OK") {
		return ""
	}
	return raw
}

func (s *Synthesizer) buildPrompt(query string, chunks []Scored[Chunk]) string {
	var ev strings.Builder
	for i, c := range chunks {
		if i >= 20 {
			break
		}
		fmt.Fprintf(&ev, "[%d] %s (%s)\n%s\n\n", i, c.Item.Title, c.Item.URL, truncateForPrompt(c.Item.Content, 600))
	}
	if ev.Len() == 0 {
		ev.WriteString("(no documents; answer from general knowledge and say so)\n")
	}
	return fmt.Sprintf(`Answer the user's question using the evidence below. Cite evidence by
index in each section's "citations" array. Respond with JSON:
{"summary": "...", "sections": [{"heading": "...", "content": "...", "citations": [0]}]}

QUESTION: %s

EVIDENCE:
%s`, query, ev.String())
}

func (s *Synthesizer) parse(raw string, chunks []Scored[Chunk]) (Synthesis, bool) {
	obj := extractJSONObject(raw)
	if obj == "" {
		return Synthesis{}, false
	}
	var doc synthesisDoc
	if err := json.Unmarshal([]byte(obj), &doc); err != nil || doc.Summary == "" {
		return Synthesis{}, false
	}

	syn := Synthesis{Summary: doc.Summary}
	cited := make(map[int]bool)
	for _, sec := range doc.Sections {
		syn.Sections = append(syn.Sections, Section{Heading: sec.Heading, Content: sec.Content})
		for _, i := range sec.Citations {
			if i >= 0 && i < len(chunks) {
				cited[i] = true
			}
		}
	}
	for i, c := range chunks {
		if cited[i] {
			syn.Sources = append(syn.Sources, sourceRef(i, c.Item))
		}
	}
	if len(syn.Sources) == 0 {
		syn.Sources = citeAll(chunks)
	}
	return syn, true
}

func (s *Synthesizer) fallback(query string) Synthesis {
	return Synthesis{
		Summary: fmt.Sprintf("I could not put together a sourced answer for %q right now. Try rephrasing, or narrow the question to a specific aspect.", query),
	}
}

func synthOptions() map[string]interface{} {
	return map[string]interface{}{
		"temperature": 0.3,
		"max_tokens":  1500,
	}
}

func citeAll(chunks []Scored[Chunk]) []SourceRef {
	var out []SourceRef
	for i, c := range chunks {
		if i >= 5 {
			break
		}
		out = append(out, sourceRef(i, c.Item))
	}
	return out
}

func sourceRef(i int, c Chunk) SourceRef {
	id := c.ID
	if id == "" {
		id = fmt.Sprintf("src-%d", i)
	}
	return SourceRef{
		ID:      id,
		Title:   c.Title,
		URL:     c.URL,
		Snippet: truncateForPrompt(c.Content, 200),
	}
}

const (
	deltaStart      = iota // deciding whether the stream is prose or JSON
	deltaProse             // pass everything through
	deltaSeekKey           // JSON: looking for the "summary" key
	deltaSeekQuote         // JSON: between the key and its opening quote
	deltaInSummary         // JSON: inside the summary string value
	deltaDone              // JSON: summary finished, drop the rest
)

// synthDeltaFilter sits between the model stream and the client. The
// synthesis model streams a JSON document; the client should only ever see
// readable text, so the filter forwards the contents of the "summary"
// string field as it arrives and swallows the surrounding scaffolding.
// Streams that do not open a JSON object pass through untouched.
type synthDeltaFilter struct {
	emit    func(string)
	raw     strings.Builder
	pos     int
	state   int
	escaped bool
}

func newSynthDeltaFilter(emit func(string)) *synthDeltaFilter {
	return &synthDeltaFilter{emit: emit}
}

const summaryKey = `"summary"`

func (f *synthDeltaFilter) feed(delta string) {
	f.raw.WriteString(delta)
	s := f.raw.String()

	for f.pos < len(s) {
		switch f.state {
		case deltaStart:
			switch s[f.pos] {
			case ' ', '\t', '\n', '\r':
				f.pos++
			case '{':
				f.state = deltaSeekKey
			default:
				f.state = deltaProse
			}
		case deltaProse:
			f.emit(s[f.pos:])
			f.pos = len(s)
		case deltaSeekKey:
			idx := strings.Index(s[f.pos:], summaryKey)
			if idx < 0 {
				// Keep a tail in case the key is split across deltas.
				if tail := len(s) - len(summaryKey); tail > f.pos {
					f.pos = tail
				}
				return
			}
			f.pos += idx + len(summaryKey)
			f.state = deltaSeekQuote
		case deltaSeekQuote:
			if s[f.pos] == '"' {
				f.state = deltaInSummary
			}
			f.pos++
		case deltaInSummary:
			if f.escaped {
				f.emit(unescapeJSON(s[f.pos]))
				f.escaped = false
				f.pos++
				continue
			}
			start := f.pos
			for f.pos < len(s) && s[f.pos] != '"' && s[f.pos] != '\\' {
				f.pos++
			}
			if f.pos > start {
				f.emit(s[start:f.pos])
			}
			if f.pos < len(s) {
				if s[f.pos] == '\\' {
					f.escaped = true
				} else {
					f.state = deltaDone
				}
				f.pos++
			}
		case deltaDone:
			f.pos = len(s)
		}
	}
}

func unescapeJSON(c byte) string {
	switch c {
	case 'n':
		return "\n"
	case 't':
		return "\t"
	default:
		return string(c)
	}
}

func renderSynthesis(s Synthesis) string {
	var b strings.Builder
	b.WriteString(s.Summary)
	for _, sec := range s.Sections {
		b.WriteString("\n\n" + sec.Heading + "\n" + sec.Content)
	}
	return b.String()
}
