package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clonar-ai/answer-engine/internal/answer"
	"github.com/clonar-ai/answer-engine/internal/stream"
	"github.com/clonar-ai/answer-engine/internal/telemetry"
)

type askRequest struct {
	Query     string        `json:"query"`
	History   []answer.Turn `json:"history,omitempty"`
	SessionID string        `json:"session_id,omitempty"`
	DeepMode  bool          `json:"deep_mode,omitempty"`
}

// handleAsk answers synchronously with the full result as JSON.
func (s *Server) handleAsk(c echo.Context) error {
	var req askRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query required")
	}

	result := s.orchestrator.Answer(c.Request().Context(), answer.Query{
		Text:      req.Query,
		History:   req.History,
		SessionID: req.SessionID,
		DeepMode:  req.DeepMode,
	})
	return c.JSON(http.StatusOK, result)
}

// endPayload is the terminal SSE event body.
type endPayload struct {
	Summary   string                   `json:"summary"`
	Sections  []answer.Section         `json:"sections,omitempty"`
	Sources   []answer.SourceRef       `json:"sources,omitempty"`
	Cards     map[string][]answer.Card `json:"cards,omitempty"`
	FollowUps []string                 `json:"follow_ups,omitempty"`
	Media     []string                 `json:"media,omitempty"`
	Result    *answer.Result           `json:"result,omitempty"`
}

// handleAskStream answers over SSE. Event protocol: one "verdict" carrying
// the first sentence, zero or more "message" increments, and exactly one
// terminal "end" with the full payload. Client disconnect cancels in-flight
// work through the request context and releases the session.
func (s *Server) handleAskStream(c echo.Context) error {
	if !s.cfg.Server.StreamEnabled {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "streaming disabled")
	}
	query := strings.TrimSpace(c.QueryParam("q"))
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q required")
	}
	sessionID := strings.TrimSpace(c.QueryParam("session_id"))
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	deep := c.QueryParam("deep") == "true" || c.QueryParam("deep") == "1"

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "streaming unsupported")
	}

	sess := stream.NewSession(sessionID)
	s.streams.Put(sessionID, sess)
	telemetry.StreamSessionsActive.Set(float64(s.streams.Len()))
	defer func() {
		s.streams.Remove(sessionID)
		telemetry.StreamSessionsActive.Set(float64(s.streams.Len()))
	}()

	send := func(event string, data any) {
		raw, err := json.Marshal(data)
		if err != nil {
			return
		}
		fmt.Fprintf(resp, "event: %s\ndata: %s\n\n", event, raw)
		flusher.Flush()
	}

	searching := stream.PhaseSearching
	sess.Apply(stream.Update{Phase: &searching, Trace: []string{"query received"}})

	events := answer.StreamEvents{
		OnVerdict: func(text string) {
			answering := stream.PhaseAnswering
			sess.Apply(stream.Update{Phase: &answering})
			sess.AppendAnswer(text)
			send("verdict", map[string]string{"text": text})
		},
		OnMessage: func(text string) {
			sess.AppendAnswer(text)
			send("message", map[string]string{"text": text})
		},
		OnEnd: func(result answer.Result) {
			done := stream.PhaseDone
			summary := result.Summary
			sections := result.Sections
			sources := result.Sources
			cards := result.Cards
			media := result.Media
			followUps := result.FollowUps
			sess.Apply(stream.Update{
				Phase:     &done,
				Answer:    &summary,
				Sections:  &sections,
				Sources:   &sources,
				Cards:     &cards,
				Media:     &media,
				FollowUps: &followUps,
				Finalized: true,
				Trace:     []string{"finalized"},
			})
			send("end", endPayload{
				Summary:   result.Summary,
				Sections:  result.Sections,
				Sources:   result.Sources,
				Cards:     result.Cards,
				Media:     result.Media,
				FollowUps: result.FollowUps,
				Result:    &result,
			})
		},
	}

	s.orchestrator.AnswerStream(c.Request().Context(), answer.Query{
		Text:      query,
		SessionID: sessionID,
		DeepMode:  deep,
	}, events)
	return nil
}
