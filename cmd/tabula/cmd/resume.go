package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marten/tabula/internal/app"
)

var resumeDOT string

var resumeCmd = &cobra.Command{
	Use:   "resume <run-id>",
	Short: "Resume a persisted run",
	Long:  "Restores the observation table from the run's snapshot and continues refining.",
	Args:  cobra.ExactArgs(1),
	RunE:  runResume,
}

func init() {
	resumeCmd.Flags().StringVar(&resumeDOT, "dot", "", "Write the final hypothesis to this file as Graphviz DOT")
}

func runResume(cmd *cobra.Command, args []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	rec, err := store.LoadRun(args[0])
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("no run %q", args[0])
	}

	res, err := app.New(store, log).Resume(cmd.Context(), rec)
	if err != nil {
		return err
	}
	fmt.Printf("✓ resumed %q: %d states after %d rounds (%d membership queries this session)\n",
		rec.Name, res.States, res.Rounds, res.Queries)

	if resumeDOT != "" {
		if err := os.WriteFile(resumeDOT, []byte(res.DOT), 0644); err != nil {
			return fmt.Errorf("write dot: %w", err)
		}
		fmt.Printf("  hypothesis written to %s\n", resumeDOT)
	}
	return nil
}
