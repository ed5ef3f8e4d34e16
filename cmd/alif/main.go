package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"alif/internal/config"
	"alif/internal/core"
)

var (
	// Global flags
	configPath string
	dataDir    string
	debugMode  bool

	engine *core.Engine
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "alif",
	Short: "alif - sentence-centric spaced repetition for Arabic",
	Long: `alif schedules whole-sentence reviews for receptive Arabic learning.

Every content word in a reviewed sentence receives an independent memory
update: new words pass through a three-box acquisition phase, established
words follow an FSRS long-term model. Sessions are built by greedy sentence
set-cover over the words due right now.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if dataDir != "" {
			cfg.DataDir = dataDir
		}
		if debugMode {
			cfg.Logging.DebugMode = true
			cfg.Logging.Level = "debug"
		}
		engine, err = core.NewEngine(cfg)
		if err != nil {
			return fmt.Errorf("failed to start engine: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if engine != nil {
			return engine.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "alif.yaml", "path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "override the data directory")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging")

	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(undoCmd)
	rootCmd.AddCommand(learnCmd)
	rootCmd.AddCommand(leechScanCmd)
	rootCmd.AddCommand(statsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
