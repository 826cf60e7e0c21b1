package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show storage usage against the quota",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	st, err := lc.Quota.Status(getContext())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Directory:  %s\n", lc.Store.Dir())
	fmt.Fprintf(out, "Usage:      %s\n", st.Summary())
	fmt.Fprintf(out, "Used:       %s bytes\n", humanize.Comma(st.CurrentSizeBytes))
	fmt.Fprintf(out, "Quota:      %s bytes\n", humanize.Comma(st.MaxSizeBytes))
	if st.CanUpload {
		fmt.Fprintln(out, "Uploads:    accepted")
	} else {
		fmt.Fprintln(out, "Uploads:    refused (storage exhausted)")
	}
	return nil
}
