package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"alif/internal/types"
)

var (
	sessionMode  string
	sessionLimit int
	sessionJSON  bool
)

// sessionCmd builds and prints a review session.
var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Build a review session",
	RunE: func(cmd *cobra.Command, args []string) error {
		mode := types.Mode(sessionMode)
		sess, err := engine.BuildSession(cmd.Context(), mode, sessionLimit, time.Now())
		if err != nil {
			return err
		}

		if sessionJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(sess)
		}

		if len(sess.Cards) == 0 {
			fmt.Println("Nothing due. Session is empty.")
			return nil
		}
		fmt.Printf("Session %s (%s, %d cards)\n\n", sess.ID, sess.Mode, len(sess.Cards))
		for i, card := range sess.Cards {
			tag := ""
			if card.OnDemand {
				tag = " [generated]"
			}
			fmt.Printf("%2d. %s%s\n    %s\n", i+1, card.Arabic, tag, card.Translation)
		}
		if len(sess.IntroCandidates) > 0 {
			fmt.Println("\nSuggested new words:")
			for _, c := range sess.IntroCandidates {
				fmt.Printf("  %s  %s (rank %d)\n", c.Bare, c.Gloss, c.FrequencyRank)
			}
		}
		return nil
	},
}

func init() {
	sessionCmd.Flags().StringVar(&sessionMode, "mode", "reading", "session mode: reading or listening")
	sessionCmd.Flags().IntVar(&sessionLimit, "limit", 0, "maximum sentences (0 = default)")
	sessionCmd.Flags().BoolVar(&sessionJSON, "json", false, "emit the full session as JSON")
}
