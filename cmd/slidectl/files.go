package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List live assets, newest first",
	RunE:  runFiles,
}

func runFiles(cmd *cobra.Command, args []string) error {
	report, err := lc.Inspector.Files(getContext())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSIZE\tUPLOADED\tLAST SERVED\tEVICTABLE IN")
	for _, f := range report.Files {
		evictable := "next sweep"
		if f.EvictableIn > 0 {
			evictable = (time.Duration(f.EvictableIn) * time.Millisecond).Round(time.Second).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			f.Name,
			humanize.IBytes(uint64(f.SizeBytes)),
			humanize.Time(time.UnixMilli(f.UploadTime)),
			humanize.Time(time.UnixMilli(f.LastAccessTime)),
			evictable,
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	s := report.Stats
	fmt.Fprintf(out, "\n%d file(s), %.2f MB of %.0f MB (%.1f%%)\n",
		s.TotalFiles, s.TotalSizeMB, s.StorageLimitMB, s.UsagePercentage)
	return nil
}
