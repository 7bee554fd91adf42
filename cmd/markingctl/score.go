package main

import (
	"encoding/json"
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mind-engage/markingsheet/internal/scoring"
	"github.com/mind-engage/markingsheet/internal/sheet"
)

type scoreFlags struct {
	sheetPath     string
	responsesPath string
	failOnFail    bool
}

func newScoreCmd() *cobra.Command {
	f := &scoreFlags{}
	cmd := &cobra.Command{
		Use:   "score [request.json]",
		Short: "Score a checklist and print the result as JSON",
		Long: `Score either a scoring request document
  {"checklist_items": [...], "responses": {...}, "passing_score": 70}
read from a file or stdin, or a sheet definition (--sheet) together with a
responses file (--responses).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				res scoring.Result
				err error
			)
			if f.sheetPath != "" {
				res, err = scoreSheet(f.sheetPath, f.responsesPath)
			} else {
				res, err = scoreRequest(cmd.InOrStdin(), args)
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return err
			}
			if f.failOnFail && res.Status == scoring.StatusFailed {
				return exitError(2, "assessment failed: %s", res.Remarks)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.sheetPath, "sheet", "", "Marking sheet definition (YAML or JSON)")
	flags.StringVar(&f.responsesPath, "responses", "", `Responses file, {"item-id": true, ...}`)
	flags.BoolVar(&f.failOnFail, "fail-on-fail", false, "Exit with status 2 when the assessment fails")
	return cmd
}

func scoreRequest(stdin io.Reader, args []string) (scoring.Result, error) {
	var (
		raw []byte
		err error
	)
	if len(args) == 0 || args[0] == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(args[0])
	}
	if err != nil {
		return scoring.Result{}, exitError(3, "read request: %v", err)
	}
	res, err := scoring.CalculateJSON(raw)
	if errors.Is(err, scoring.ErrInvalidInput) {
		return scoring.Result{}, exitError(3, "%v", err)
	}
	return res, err
}

func scoreSheet(sheetPath, responsesPath string) (scoring.Result, error) {
	d, err := sheet.LoadFile(sheetPath)
	if err != nil {
		return scoring.Result{}, exitError(3, "%v", err)
	}
	responses := scoring.Responses{}
	if responsesPath != "" {
		raw, err := os.ReadFile(responsesPath)
		if err != nil {
			return scoring.Result{}, exitError(3, "read responses: %v", err)
		}
		if err := json.Unmarshal(raw, &responses); err != nil {
			return scoring.Result{}, exitError(3, "parse responses %q: %v", responsesPath, err)
		}
	}
	return scoring.Calculate(d.ScoringItems(), responses, d.PassingScoreOrDefault()), nil
}
