package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/clonar-ai/answer-engine/config"
	"github.com/clonar-ai/answer-engine/internal/answer"
	"github.com/clonar-ai/answer-engine/internal/capability"
	"github.com/clonar-ai/answer-engine/internal/memory"
)

// askCMD answers a single query from the terminal without starting the
// server. Useful for smoke testing a configuration.
func askCMD() *cobra.Command {
	var cfgPath string
	var sessionID string
	var deep bool
	var ask = &cobra.Command{
		Use:   "ask [query]",
		Short: "Answer one query and print the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)

			llm, err := answer.NewLLMProvider(cfg.LLM)
			if err != nil {
				return err
			}
			providers := capability.NewProviders(cfg.Capabilities, cfg.Retry)
			store := memory.NewInMemoryStore(cfg.Session.TTL)
			orch := answer.NewOrchestrator(cfg, llm, providers, store)

			result := orch.Answer(context.Background(), answer.Query{
				Text:      strings.Join(args, " "),
				SessionID: sessionID,
				DeepMode:  deep,
			})

			fmt.Println(result.Summary)
			for _, sec := range result.Sections {
				fmt.Printf("\n## %s\n%s\n", sec.Heading, sec.Content)
			}
			if len(result.Sources) > 0 {
				fmt.Println("\nSources:")
				for _, src := range result.Sources {
					fmt.Printf("  - %s (%s)\n", src.Title, src.URL)
				}
			}
			for vertical, cards := range result.Cards {
				fmt.Printf("\n%s:\n", vertical)
				for _, card := range cards {
					fmt.Printf("  - %s %s\n", card.Name, card.PriceText)
				}
			}
			if len(result.FollowUps) > 0 {
				fmt.Println("\nFollow ups:")
				for _, f := range result.FollowUps {
					fmt.Printf("  - %s\n", f)
				}
			}
			fmt.Printf("\n[%s/%s via %s, confidence %s, %s]\n",
				result.Vertical, result.Grounding, result.DecidedBy, result.Confidence, result.ProcessingTime)
			return nil
		},
	}
	ask.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	ask.Flags().StringVar(&sessionID, "session", "", "session id for conversational memory")
	ask.Flags().BoolVar(&deep, "deep", false, "deep mode: critique and rerun once")

	return ask
}
