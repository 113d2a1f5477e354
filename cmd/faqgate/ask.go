package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/faqgate/internal/pipeline"
	"github.com/dshills/faqgate/internal/storage"
)

var askJSON bool

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from the FAQ",
	Long: `Retrieves the best FAQ entries for the question, runs the confidence gate
and generates an answer only when the gate accepts. A declined question
prints the reason and exits successfully.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the full result as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")

	app, err := newApplication(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	ctx := cmd.Context()
	if err := app.prepare(ctx); err != nil {
		return err
	}

	res, err := app.pipeline.Handle(ctx, pipeline.Request{Question: question, Type: storage.InteractionAsk})
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}

	if askJSON {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if !res.Answered {
		cmd.Printf("Not answered (%s): %s\n", res.Outcome, res.Reason)
		return nil
	}
	cmd.Println(res.Answer)
	if len(res.Results) > 0 {
		cmd.Println()
		cmd.Println("Sources:")
		for i, r := range res.Results {
			cmd.Printf("  [%d] %s (%.3f) %s\n", i+1, r.Chunk.Heading, r.Score, r.Chunk.SourceURL)
		}
	}
	return nil
}
