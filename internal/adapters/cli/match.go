package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"invoice-reconciler/internal/app"

	"github.com/spf13/cobra"
)

// errUnmatched makes the process exit non-zero after the report is printed.
var errUnmatched = errors.New("no AP record produced")

func matchCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Evaluate an order against invoice candidates from a JSON file",
		Long: `Reads {"order": {...}, "candidates": [...]} and prints the match report.
Without --company the engine runs offline with the configured account codes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			company, _ := cmd.Flags().GetString("company")

			req, err := readMatchRequest(file)
			if err != nil {
				return err
			}
			if company != "" {
				req.CompanyCode = company
			}

			var svc app.ApplicationService
			if req.CompanyCode == "" {
				engine, err := e.cfg.Engine()
				if err != nil {
					return err
				}
				svc = app.NewAppService(app.Deps{Engine: engine})
			} else {
				var closeFn func()
				if svc, closeFn, err = e.service(cmd); err != nil {
					return err
				}
				defer closeFn()
			}

			report, err := svc.EvaluateMatch(cmd.Context(), req)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if report.Failure != nil {
				return fmt.Errorf("%w: %s", errUnmatched, report.Failure.Reason)
			}
			return nil
		},
	}
	cmd.Flags().StringP("file", "f", "", "match request JSON file (- for stdin)")
	cmd.Flags().String("company", "", "company code; enables account rules and duplicate checks")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readMatchRequest(path string) (app.MatchRequest, error) {
	var req app.MatchRequest
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path) // #nosec G304
	}
	if err != nil {
		return req, fmt.Errorf("read match request: %w", err)
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("parse match request: %w", err)
	}
	return req, nil
}
