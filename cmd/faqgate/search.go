package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/faqgate/internal/pipeline"
)

var (
	searchLimit int
	searchJSON  bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "List FAQ entries related to a query",
	Long: `Ranks FAQ entries semantically and lists those above the suggestion
similarity floor, without generating an answer.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", pipeline.DefaultSuggestionCount, "maximum number of results")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	app, err := newApplication(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	ctx := cmd.Context()
	if err := app.prepare(ctx); err != nil {
		return err
	}

	suggestions, err := app.suggestions.Search(ctx, query, searchLimit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		data, err := json.MarshalIndent(suggestions, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(suggestions) == 0 {
		cmd.Println("No results found.")
		return nil
	}
	cmd.Println("Results:")
	cmd.Println()
	for i, sg := range suggestions {
		cmd.Printf("[%d] %s (%.3f)\n", i+1, sg.Heading, sg.Similarity)
		cmd.Printf("    %s\n", strings.ReplaceAll(sg.Preview, "\n", " "))
		if sg.URL != "" {
			cmd.Printf("    %s\n", sg.URL)
		}
	}
	return nil
}
