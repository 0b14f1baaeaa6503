package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/castlemilk/dietplanner/internal/diet"
	"github.com/castlemilk/dietplanner/internal/extraction"
	"github.com/castlemilk/dietplanner/internal/pipeline"
)

const (
	outputJSON = "json"
	outputText = "text"
)

type planFlags struct {
	preference       string
	format           string
	text             string
	seed             uint64
	diabetes         bool
	totalCholesterol float64
}

func newPlanCmd(load loader) *cobra.Command {
	var f planFlags
	cmd := &cobra.Command{
		Use:   "plan [file]",
		Short: "Analyse one document and print its diet plan",
		Long: "Analyse a PDF, image, text or CSV report (or --text) and print the result\n" +
			"as JSON or as the Day 1..Day 7 text layout.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.format != outputJSON && f.format != outputText {
				return fmt.Errorf("unknown --format %q: expected json or text", f.format)
			}
			pref, err := diet.ParsePreference(f.preference)
			if err != nil {
				return err
			}
			req := pipeline.Request{
				Text:       f.text,
				Preference: pref,
				Hints:      pipeline.Hints{Diabetes: f.diabetes, TotalCholesterol: f.totalCholesterol},
			}
			if len(args) == 1 {
				data, err := os.ReadFile(args[0])
				if err != nil {
					return fmt.Errorf("read %s: %w", args[0], err)
				}
				req.Document = &extraction.Document{Name: filepath.Base(args[0]), Data: data}
			} else if f.text == "" {
				return errors.New("a file or --text is required")
			}

			cfg, err := load()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			opts := pipelineOptions(cfg, logger)
			if cmd.Flags().Changed("seed") {
				catalog, err := diet.DefaultCatalog()
				if err != nil {
					return err
				}
				opts = append(opts, pipeline.WithPlanner(diet.NewPlanner(catalog, diet.WithRandFactory(diet.Seeded(f.seed)))))
			}
			p, err := pipeline.New(opts...)
			if err != nil {
				return err
			}

			a, err := p.Run(cmd.Context(), req)
			if err != nil {
				return err
			}
			return writeResult(cmd.OutOrStdout(), a, f.format)
		},
	}
	cmd.Flags().StringVarP(&f.preference, "preference", "p", string(diet.DefaultPreference), "dietary preference: vegetarian, vegan or non-vegetarian")
	cmd.Flags().StringVarP(&f.format, "format", "f", outputJSON, "output format: json or text")
	cmd.Flags().StringVar(&f.text, "text", "", "analyse this text instead of a file")
	cmd.Flags().Uint64Var(&f.seed, "seed", 0, "seed the meal shuffle for a reproducible plan")
	cmd.Flags().BoolVar(&f.diabetes, "diabetes", false, "the patient is known to be diabetic")
	cmd.Flags().Float64Var(&f.totalCholesterol, "total-cholesterol", 0, "known total cholesterol in mg/dL")
	return cmd
}

func writeResult(w io.Writer, a *pipeline.Analysis, format string) error {
	if format == outputText {
		_, err := fmt.Fprintln(w, diet.RenderText(a.Result.WeeklyPlan))
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(a.Result)
}
