package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete assets idle for longer than the threshold",
	Long: `Run one eviction sweep now.

An asset is evicted when it has not been served for longer than the idle
threshold. Assets that cannot be deleted are reported in the log and skipped.`,
	RunE: runSweep,
}

func runSweep(cmd *cobra.Command, args []string) error {
	res, err := lc.Sweeper.Sweep(getContext())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, name := range res.Deleted {
		fmt.Fprintf(out, "deleted  %s\n", name)
	}
	fmt.Fprintf(out, "%d file(s) deleted, %s freed\n", len(res.Deleted), humanize.IBytes(uint64(res.BytesFreed)))
	return nil
}
