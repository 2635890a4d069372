package cli

import (
	"fmt"
	"io"
	"strings"

	"invoice-reconciler/internal/app"

	"github.com/spf13/cobra"
)

func reconcileCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Find the invoice for a stored order in the mailbox and record it",
		RunE: func(cmd *cobra.Command, args []string) error {
			company, _ := cmd.Flags().GetString("company")
			order, _ := cmd.Flags().GetString("order")
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			asJSON, _ := cmd.Flags().GetBool("json")

			svc, closeFn, err := e.service(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			res, err := svc.ReconcileOrder(cmd.Context(), app.ReconcileRequest{
				CompanyCode: company,
				OrderNumber: order,
				DryRun:      dryRun,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				if err := printJSON(out, res); err != nil {
					return err
				}
			} else {
				printReconcile(out, res)
			}
			if res.Failure != nil {
				return fmt.Errorf("%w: %s", errUnmatched, res.Failure.Reason)
			}
			return nil
		},
	}
	cmd.Flags().String("company", "", "company code")
	cmd.Flags().String("order", "", "order number")
	cmd.Flags().Bool("dry-run", false, "evaluate without creating the AP record")
	cmd.Flags().Bool("json", false, "print the full result as JSON")
	_ = cmd.MarkFlagRequired("company")
	_ = cmd.MarkFlagRequired("order")
	return cmd
}

func printReconcile(w io.Writer, res *app.ReconcileResult) {
	fmt.Fprintf(w, "  Order     : %s (%s)\n", res.OrderNumber, res.CompanyCode)
	fmt.Fprintf(w, "  Messages  : %d, candidates: %d, skipped: %d\n", res.MessageCount, res.CandidateCount, len(res.Skipped))
	for _, s := range res.Skipped {
		fmt.Fprintf(w, "    skipped %s (%s): %s\n", s.Ref, s.Filename, s.Reason)
	}

	if len(res.Matches) > 0 {
		fmt.Fprintf(w, "\n  %-20s %-10s %14s  %s\n", "INVOICE", "CONFIDENCE", "TOTAL", "REASONS")
		for _, m := range res.Matches {
			reasons := make([]string, len(m.Reasons))
			for i, r := range m.Reasons {
				reasons[i] = string(r)
			}
			fmt.Fprintf(w, "  %-20s %-10s %14s  %s\n",
				m.Candidate.InvoiceNumber, m.Confidence, m.Candidate.Total.StringFixed(2), strings.Join(reasons, ","))
		}
	}

	if b := res.Breakdown; b != nil {
		fmt.Fprintf(w, "\n  %-12s %14s\n", "CATEGORY", "AMOUNT")
		for _, c := range b.Categories() {
			fmt.Fprintf(w, "  %-12s %14s\n", c, b.Amount(c).StringFixed(2))
		}
		fmt.Fprintf(w, "  %-12s %14s\n", "TOTAL", b.Total.StringFixed(2))
	}

	fmt.Fprintln(w)
	switch {
	case res.Failure != nil:
		fmt.Fprintf(w, "  FAILED: %s %s\n", res.Failure.Reason, res.Failure.Detail)
	case res.DryRun:
		fmt.Fprintf(w, "  Dry run: AP record for invoice %s not created.\n", res.Record.InvoiceNumber)
	default:
		fmt.Fprintf(w, "  Created AP record %s for invoice %s.\n", res.Record.PublicID, res.Record.InvoiceNumber)
	}
}
