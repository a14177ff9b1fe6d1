package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/VTimofeenko/connect-autoapprove/internal/extension"
	"github.com/VTimofeenko/connect-autoapprove/internal/logging"
	"github.com/VTimofeenko/connect-autoapprove/internal/reprocess"
)

var (
	reprocessProducts    []string
	reprocessConcurrency int
	reprocessLimit       int
	reprocessDryRun      bool
)

var reprocessCmd = &cobra.Command{
	Use:   "reprocess",
	Short: "Run every pending purchase, change and cancel request through the pipeline",
	Long: `Lists requests still pending on the platform and processes each one as if
its event had just arrived. Requests the ledger already records as approved
are skipped.`,
	Args: cobra.NoArgs,
	RunE: runReprocess,
}

func init() {
	reprocessCmd.Flags().StringSliceVar(&reprocessProducts, "product", nil, "Only requests for these product ids (repeatable)")
	reprocessCmd.Flags().IntVar(&reprocessConcurrency, "concurrency", 0, "Requests processed in parallel (default from config)")
	reprocessCmd.Flags().IntVar(&reprocessLimit, "limit", 0, "Stop after this many requests (0 = all)")
	reprocessCmd.Flags().BoolVar(&reprocessDryRun, "dry-run", false, "Resolve everything but write nothing")
}

func runReprocess(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	a := newApp(cfg, logs)
	defer a.Close()

	settings := extension.SettingsFromConfig(cfg.Extension)
	if reprocessDryRun {
		settings.DryRun = true
	}
	ext, err := a.newExtension(settings)
	if err != nil {
		return err
	}
	client, err := a.platform()
	if err != nil {
		return err
	}

	var checker reprocess.ApprovalChecker
	if a.ledger != nil {
		checker = a.ledger
	}

	opts := reprocess.Options{
		ProductIDs:  reprocessProducts,
		Concurrency: reprocessConcurrency,
		PageSize:    cfg.Reprocess.PageSize,
		Limit:       reprocessLimit,
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = cfg.Reprocess.Concurrency
	}
	if len(opts.ProductIDs) == 0 {
		opts.ProductIDs = cfg.Reprocess.ProductIDs
	}

	r := reprocess.New(client, ext, checker, logs.Get(logging.CategoryReprocess))
	sum, err := r.Run(ctx, opts)
	if sum != nil {
		printSummary(cmd.OutOrStdout(), sum, settings.DryRun)
	}
	if err != nil {
		return err
	}
	if sum.Failed > 0 {
		return fmt.Errorf("%d of %d requests failed", sum.Failed, sum.Seen)
	}
	return nil
}

func printSummary(w io.Writer, sum *reprocess.Summary, dryRun bool) {
	title := "Reprocess summary"
	if dryRun {
		title += " (dry run)"
	}
	approvedLabel := "approved"
	if dryRun {
		approvedLabel = "would approve"
	}
	body := kv(
		[2]string{"seen", strconv.Itoa(sum.Seen)},
		[2]string{approvedLabel, successStyle.Render(strconv.Itoa(sum.Approved))},
		[2]string{"skipped", skipStyle.Render(strconv.Itoa(sum.Skipped))},
		[2]string{"already approved", mutedStyle.Render(strconv.Itoa(sum.AlreadyApproved))},
		[2]string{"failed", errorStyle.Render(strconv.Itoa(sum.Failed))},
		[2]string{"took", sum.Duration.Round(time.Millisecond).String()},
	)
	for _, id := range sum.FailedIDs() {
		body += "\n" + errorStyle.Render("✗ ") + fmt.Sprintf("%s: %v", id, sum.Failures[id])
	}
	printBox(w, title, body)
}
