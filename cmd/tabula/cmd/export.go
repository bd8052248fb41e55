package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Print a run's hypothesis as Graphviz DOT",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
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
	if rec.HypothesisDOT == "" {
		return fmt.Errorf("run %q has no stored hypothesis", args[0])
	}
	fmt.Print(rec.HypothesisDOT)
	return nil
}
