package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"alif/internal/types"
)

// statsCmd prints knowledge-state counts, due counts and the leech list.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show memory store statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := engine.Stats(cmd.Context(), time.Now())
		if err != nil {
			return err
		}

		order := []types.KnowledgeState{
			types.StateEncountered, types.StateAcquiring, types.StateLearning,
			types.StateKnown, types.StateLapsed, types.StateSuspended,
		}
		fmt.Println("Knowledge states:")
		for _, ks := range order {
			fmt.Printf("  %-12s %d\n", ks, stats.Counts[ks])
		}
		fmt.Printf("\nDue now: %d acquiring, %d long-term\n", stats.DueAcquiring, stats.DueLongTerm)

		if len(stats.Leeches) > 0 {
			fmt.Println("\nLeeches:")
			for _, l := range stats.Leeches {
				fmt.Printf("  %s (lemma %d): accuracy %.0f%%, suspension #%d, eligible %s\n",
					l.Bare, l.LemmaID, l.Accuracy*100, l.LeechCount, l.EligibleAt.Format(time.RFC3339))
			}
		}
		return nil
	},
}

// learnCmd promotes an encountered lemma into acquisition.
var learnCmd = &cobra.Command{
	Use:   "learn <lemma-id>",
	Short: "Introduce a word into acquisition (Learn mode)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid lemma id %q", args[0])
		}
		if err := engine.IntroduceLemma(cmd.Context(), id, time.Now()); err != nil {
			return err
		}
		fmt.Printf("Lemma %d is now acquiring, due immediately.\n", id)
		return nil
	},
}

// leechScanCmd runs the leech reintroduction scan once.
var leechScanCmd = &cobra.Command{
	Use:   "leech-scan",
	Short: "Reintroduce suspended words past their cooldown",
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := engine.RunLeechScan(cmd.Context(), time.Now())
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Println("No suspended words are past their cooldown.")
			return nil
		}
		fmt.Printf("Reintroduced %d words: %v\n", len(ids), ids)
		return nil
	},
}
