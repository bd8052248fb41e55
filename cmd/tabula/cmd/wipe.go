package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var wipeForce bool

var wipeCmd = &cobra.Command{
	Use:   "wipe [run-id]",
	Short: "Delete one run, or all of them",
	Long:  "With a run ID, deletes that run. Without one, deletes every persisted run.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runWipe,
}

func init() {
	wipeCmd.Flags().BoolVar(&wipeForce, "force", false, "Skip confirmation prompt")
}

func runWipe(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if len(args) == 1 {
		if err := store.DeleteRun(args[0]); err != nil {
			return err
		}
		fmt.Printf("run %s deleted\n", args[0])
		return nil
	}

	if !wipeForce {
		fmt.Print("⚠ This will delete all persisted runs. Continue? [y/N] ")
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		answer = strings.TrimSpace(strings.ToLower(answer))
		if answer != "y" && answer != "yes" {
			fmt.Println("cancelled")
			return nil
		}
	}

	runs, err := store.ListRuns()
	if err != nil {
		return err
	}
	for _, r := range runs {
		if err := store.DeleteRun(r.ID); err != nil {
			return err
		}
	}
	fmt.Printf("%d run(s) deleted\n", len(runs))
	return nil
}
