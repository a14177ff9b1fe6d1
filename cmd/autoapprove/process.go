package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/VTimofeenko/connect-autoapprove/internal/extension"
)

var processDryRun bool

var processCmd = &cobra.Command{
	Use:   "process <request-id>...",
	Short: "Fetch requests by id and run them through the approval pipeline",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runProcess,
}

func init() {
	processCmd.Flags().BoolVar(&processDryRun, "dry-run", false, "Resolve everything but write nothing")
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	a := newApp(cfg, logs)
	defer a.Close()

	settings := extension.SettingsFromConfig(cfg.Extension)
	if processDryRun {
		settings.DryRun = true
	}
	ext, err := a.newExtension(settings)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var failed int
	for _, id := range args {
		res, err := ext.ProcessRequestID(ctx, id)
		if err != nil {
			failed++
		}
		title := "Processed"
		if settings.DryRun {
			title = "Processed (dry run)"
		}
		printBox(out, title, renderResult(id, res))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d requests failed", failed, len(args))
	}
	return nil
}
