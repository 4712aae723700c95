package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/granule"
)

type triggerKeyOptions struct {
	bucket string
}

func newTriggerKeyCmd() *cobra.Command {
	opts := &triggerKeyOptions{}

	cmd := &cobra.Command{
		Use:   "trigger-key <granule-id|file-name>...",
		Short: "Print the trigger object key of granules",
		Example: `  hlsrecon trigger-key HLS.S30.T15XWH.2024239T194859.v2.0
  hlsrecon trigger-key --bucket hls-global-v2-forward HLS.L30.T10SEG.2024239T183512.v2.0.B01.tif`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return runTriggerKey(opts, args, c.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.bucket, "bucket", "", "print s3:// URIs in this bucket")

	return cmd
}

func runTriggerKey(opts *triggerKeyOptions, names []string, out io.Writer) error {
	for _, name := range names {
		granuleID, err := granule.ParseGranuleID(name)
		if err != nil {
			return err
		}

		key, err := granule.TriggerObjectKey(granuleID)
		if err != nil {
			return err
		}

		if opts.bucket != "" {
			key = "s3://" + opts.bucket + "/" + key
		}

		fmt.Fprintln(out, key)
	}

	return nil
}
