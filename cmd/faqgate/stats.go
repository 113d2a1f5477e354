package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
)

var (
	statsSince time.Duration
	statsJSON  bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarise the interaction log",
	Long: `Reports how many questions were asked and answered, the mean top score of
answered questions and the split by outcome. --since 0 covers the whole log.`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().DurationVar(&statsSince, "since", 24*time.Hour, "aggregation window")
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	if statsSince < 0 {
		return fmt.Errorf("--since cannot be negative")
	}
	db, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	var since time.Time
	if statsSince > 0 {
		since = time.Now().Add(-statsSince)
	}
	stats, err := db.InteractionStats(cmd.Context(), since)
	if err != nil {
		return fmt.Errorf("failed to aggregate interactions: %w", err)
	}

	if statsJSON {
		data, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal stats: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Printf("Questions: %d\n", stats.Total)
	cmd.Printf("Answered:  %d (%.1f%%)\n", stats.Answered, stats.AnswerRate*100)
	if stats.Answered > 0 {
		cmd.Printf("Mean top score when answered: %.3f\n", stats.AvgConfidence)
	}
	cmd.Printf("Status updates shown: %d\n", stats.StatusUpdatesShown)
	printCounts(cmd, "By outcome:", stats.ByOutcome)
	printCounts(cmd, "By type:", stats.ByType)
	return nil
}

func printCounts(cmd *cobra.Command, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	cmd.Println(title)
	for _, k := range keys {
		cmd.Printf("  %-16s %d\n", k, counts[k])
	}
}
