package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	fsw "github.com/marten/tabula/internal/adapters/fsnotify"
	"github.com/marten/tabula/internal/app"
)

var (
	learnDOT        string
	learnWatch      bool
	learnCex        string
	learnClosing    string
	learnMaxQueries uint64
	learnWorkers    int
	learnSeed       int64
)

var learnCmd = &cobra.Command{
	Use:   "learn <experiment.yaml>",
	Short: "Run a learning experiment",
	Long:  "Loads a YAML experiment, learns the target machine and persists the run.",
	Args:  cobra.ExactArgs(1),
	RunE:  runLearn,
}

func init() {
	learnCmd.Flags().StringVar(&learnDOT, "dot", "", "Write the final hypothesis to this file as Graphviz DOT")
	learnCmd.Flags().BoolVar(&learnWatch, "watch", false, "Re-run the experiment whenever the file changes")
	learnCmd.Flags().StringVar(&learnCex, "cex", "", "Counterexample handler: classic or rs")
	learnCmd.Flags().StringVar(&learnClosing, "closing", "", "Closing strategy: first or shortest")
	learnCmd.Flags().Uint64Var(&learnMaxQueries, "max-queries", 0, "Membership query budget (0 = unlimited)")
	learnCmd.Flags().IntVar(&learnWorkers, "workers", 0, "Parallel oracle workers")
	learnCmd.Flags().Int64Var(&learnSeed, "seed", 0, "Random-words equivalence seed")
}

func runLearn(cmd *cobra.Command, args []string) error {
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

	a := app.New(store, log)
	path := args[0]

	runOnce := func(ctx context.Context) error {
		exp, raw, err := app.Load(path)
		if err != nil {
			return err
		}
		if err := applyLearnFlags(cmd, exp); err != nil {
			return err
		}

		res, err := a.Run(ctx, exp, raw)
		if err != nil {
			return err
		}
		fmt.Printf("✓ learned %d-state %s %q in %d rounds (%d membership queries)\n",
			res.States, exp.Kind, exp.Name, res.Rounds, res.Queries)
		fmt.Printf("  run %s\n", res.RunID)

		if learnDOT != "" {
			if err := os.WriteFile(learnDOT, []byte(res.DOT), 0644); err != nil {
				return fmt.Errorf("write dot: %w", err)
			}
			fmt.Printf("  hypothesis written to %s\n", learnDOT)
		}
		return nil
	}

	if !learnWatch {
		return runOnce(cmd.Context())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	w, err := fsw.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Stop()

	changed := make(chan struct{}, 1)
	if err := w.Watch(path, func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}); err != nil {
		return err
	}

	// In watch mode a failed run is reported, not fatal: the next edit of
	// the experiment file gets a fresh attempt.
	report := func(err error) {
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
	report(runOnce(ctx))
	fmt.Printf("watching %s — edit to re-run, ^C to stop\n", path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
			report(runOnce(ctx))
		}
	}
}

// applyLearnFlags overrides experiment settings with explicit flags, then
// re-validates so a bad flag value fails like a bad file value.
func applyLearnFlags(cmd *cobra.Command, exp *app.Experiment) error {
	if cmd.Flags().Changed("cex") {
		exp.Learner.Cex = learnCex
	}
	if cmd.Flags().Changed("closing") {
		exp.Learner.Closing = learnClosing
	}
	if cmd.Flags().Changed("max-queries") {
		exp.Oracle.MaxQueries = learnMaxQueries
	}
	if cmd.Flags().Changed("workers") {
		exp.Oracle.Workers = learnWorkers
	}
	if cmd.Flags().Changed("seed") {
		exp.Equivalence.Seed = learnSeed
	}
	return exp.Validate()
}
