package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"alif/internal/types"
)

var (
	reviewClientID string
	reviewSession  string
	reviewSentence int64
	reviewSignal   string
	reviewMissed   []int64
	reviewConfused []int64
	reviewMode     string
	reviewMs       int
)

// reviewCmd submits one sentence review.
var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Submit a sentence review",
	RunE: func(cmd *cobra.Command, args []string) error {
		if reviewClientID == "" {
			reviewClientID = uuid.NewString()
		}
		sub := types.ReviewSubmission{
			ClientReviewID:   reviewClientID,
			SessionID:        reviewSession,
			SentenceID:       reviewSentence,
			Signal:           types.Comprehension(reviewSignal),
			MissedLemmaIDs:   reviewMissed,
			ConfusedLemmaIDs: reviewConfused,
			ResponseMs:       reviewMs,
			Mode:             types.Mode(reviewMode),
		}
		result, err := engine.SubmitReview(cmd.Context(), sub, time.Now())
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

// undoCmd reverts a previous submission.
var undoCmd = &cobra.Command{
	Use:   "undo <client-review-id>",
	Short: "Undo a previous review submission",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := engine.Undo(cmd.Context(), args[0], time.Now()); err != nil {
			return err
		}
		fmt.Printf("Submission %s undone.\n", args[0])
		return nil
	},
}

func init() {
	reviewCmd.Flags().StringVar(&reviewClientID, "id", "", "client review id (generated when empty)")
	reviewCmd.Flags().StringVar(&reviewSession, "session", "", "session id")
	reviewCmd.Flags().Int64Var(&reviewSentence, "sentence", 0, "sentence id")
	reviewCmd.Flags().StringVar(&reviewSignal, "signal", "understood", "comprehension signal: understood, partial, grammar_confused, no_idea")
	reviewCmd.Flags().Int64SliceVar(&reviewMissed, "missed", nil, "missed lemma ids")
	reviewCmd.Flags().Int64SliceVar(&reviewConfused, "confused", nil, "confused lemma ids")
	reviewCmd.Flags().StringVar(&reviewMode, "mode", "reading", "session mode")
	reviewCmd.Flags().IntVar(&reviewMs, "response-ms", 0, "response time in milliseconds")
	reviewCmd.MarkFlagRequired("sentence")
}
