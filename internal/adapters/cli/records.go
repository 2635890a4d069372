package cli

import (
	"fmt"
	"io"

	"invoice-reconciler/internal/core"

	"github.com/spf13/cobra"
)

func apRecordsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ap-records",
		Short: "List AP records of a company, or show one with --id",
		RunE: func(cmd *cobra.Command, args []string) error {
			company, _ := cmd.Flags().GetString("company")
			id, _ := cmd.Flags().GetString("id")
			limit, _ := cmd.Flags().GetInt("limit")
			asJSON, _ := cmd.Flags().GetBool("json")

			svc, closeFn, err := e.service(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			out := cmd.OutOrStdout()
			if id != "" {
				res, err := svc.GetAPRecord(cmd.Context(), company, id)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(out, res)
				}
				printAPRecord(out, res.Record)
				return nil
			}

			res, err := svc.ListAPRecords(cmd.Context(), company, limit)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(out, res)
			}
			printAPRecords(out, company, res.Records)
			return nil
		},
	}
	cmd.Flags().String("company", "", "company code")
	cmd.Flags().String("id", "", "show a single AP record")
	cmd.Flags().Int("limit", 50, "maximum records to list")
	cmd.Flags().Bool("json", false, "print JSON")
	_ = cmd.MarkFlagRequired("company")
	return cmd
}

func printAPRecords(w io.Writer, company string, recs []core.APRecord) {
	if len(recs) == 0 {
		fmt.Fprintf(w, "No AP records for company %s.\n", company)
		return
	}
	fmt.Fprintf(w, "  %-36s %-16s %-20s %-8s %-10s %14s\n", "ID", "ORDER", "INVOICE", "STATUS", "CONFIDENCE", "TOTAL")
	for _, r := range recs {
		fmt.Fprintf(w, "  %-36s %-16s %-20s %-8s %-10s %14s\n",
			r.PublicID, r.OrderNumber, r.InvoiceNumber, r.Status, r.Confidence, r.Total.StringFixed(2))
	}
	fmt.Fprintf(w, "  %d record(s)\n", len(recs))
}

func printAPRecord(w io.Writer, r *core.APRecord) {
	fmt.Fprintf(w, "  AP record : %s\n", r.PublicID)
	fmt.Fprintf(w, "  Order     : %s\n", r.OrderNumber)
	fmt.Fprintf(w, "  Invoice   : %s (%s)\n", r.InvoiceNumber, r.SupplierName)
	if r.InvoiceDate != nil {
		fmt.Fprintf(w, "  Date      : %s\n", r.InvoiceDate.Format("2006-01-02"))
	}
	if r.DueDate != nil {
		fmt.Fprintf(w, "  Due       : %s\n", r.DueDate.Format("2006-01-02"))
	}
	fmt.Fprintf(w, "  Status    : %s, confidence %s\n", r.Status, r.Confidence)
	fmt.Fprintf(w, "  Source    : %s\n", r.SourceEmailRef)

	fmt.Fprintf(w, "\n  %-12s %-10s %14s\n", "CATEGORY", "ACCOUNT", "AMOUNT")
	for _, p := range r.LinePostings {
		fmt.Fprintf(w, "  %-12s %-10s %14s\n", p.Category, p.AccountCode, p.Amount.StringFixed(2))
	}
	fmt.Fprintf(w, "  %-12s %-10s %14s %s\n", "TOTAL", "", r.Total.StringFixed(2), r.Currency)
}
