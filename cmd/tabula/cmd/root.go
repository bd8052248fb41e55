package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/marten/tabula/internal/adapters/bbolt"
)

var (
	dbPath  string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "tabula",
	Short: "tabula — active automata learning",
	Long:  "Learns DFA and Mealy machines from experiment definitions with L*-style observation tables.",
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", filepath.Join(".tabula", "runs.db"), "Path to the run database")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable info-level logging")

	rootCmd.AddCommand(learnCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(wipeCmd)
}

// openStore opens the run database, creating its directory if needed.
func openStore() (*bbolt.Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}
	return bbolt.NewStore(dbPath)
}

// newLogger builds the CLI logger. Progress is info-level, so runs are
// quiet unless --verbose is given.
func newLogger() (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}
	return cfg.Build()
}
