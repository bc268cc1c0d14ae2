// Package capability implements the retrieval providers the executor can
// invoke as plan steps. Providers never surface transport errors for
// missing credentials; they log a warning and return an empty result so
// the pipeline continues.
package capability

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/clonar-ai/answer-engine/config"
	"github.com/clonar-ai/answer-engine/internal/answer"
)

// NewProviders builds the configured provider set in merge precedence
// order.
func NewProviders(cfg config.CapabilitiesConfig, retry config.RetryConfig) []answer.CapabilityProvider {
	client := answer.NewHTTPClient(cfg.StepTimeout, retry.MaxAttempts-1, retry.BaseBackoff, retry.MaxBackoff)

	byName := map[string]answer.CapabilityProvider{
		"serpapi":   NewSerpAPIProvider(cfg.SerpAPI, cfg.MaxResults, client),
		"brave":     NewBraveProvider(cfg.WebSearch, client),
		"serper":    NewSerperProvider(cfg.WebSearch, client),
		"web_fetch": NewWebFetchProvider(cfg.WebFetch),
	}

	var out []answer.CapabilityProvider
	seen := make(map[string]bool)
	for _, name := range cfg.Precedence {
		if p, ok := byName[name]; ok && !seen[name] {
			out = append(out, p)
			seen[name] = true
		}
	}
	for _, name := range []string{"serpapi", "brave", "serper", "web_fetch"} {
		if !seen[name] {
			out = append(out, byName[name])
		}
	}
	return out
}

// strArg reads a string step argument, tolerating absent keys.
func strArg(args map[string]interface{}, key string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// floatArg reads a numeric step argument; LLM-produced plans sometimes
// quote numbers.
func floatArg(args map[string]interface{}, key string) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		f, _ := strconv.ParseFloat(strings.TrimPrefix(v, "$"), 64)
		return f
	}
	return 0
}

func intArg(args map[string]interface{}, key string) int {
	return int(floatArg(args, key))
}

// parseFloat tolerates provider strings like "4.5" and "$89.99".
func parseFloat(s string) float64 {
	s = strings.TrimSpace(strings.TrimPrefix(s, "$"))
	s = strings.ReplaceAll(s, ",", "")
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

// parseCount tolerates review counts like "1,234".
func parseCount(v interface{}) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case string:
		return int(parseFloat(n))
	}
	return 0
}

func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}
