package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/castlemilk/dietplanner/internal/eval"
	"github.com/castlemilk/dietplanner/internal/pipeline"
)

func newEvalCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "eval",
		Short: "Score the rule-based and configured pipelines against labelled reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			fixtures, err := eval.LoadFixtures()
			if err != nil {
				return err
			}

			rules, err := pipeline.New(pipeline.WithLogger(logger))
			if err != nil {
				return err
			}
			strategies := map[string]eval.StrategyFunc{"rules": eval.PipelineStrategy(rules)}
			if cfg.Model.Artifact != "" || cfg.Model.URL != "" {
				configured, err := pipeline.New(pipelineOptions(cfg, logger)...)
				if err != nil {
					return err
				}
				strategies["model"] = eval.PipelineStrategy(configured)
			}

			results := eval.RunEval(cmd.Context(), strategies, fixtures)
			eval.PrintSummary(cmd.OutOrStdout(), results)
			if n := countFailed(results); n > 0 {
				return fmt.Errorf("%d of %d evaluations failed", n, len(results))
			}
			return nil
		},
	}
}

func countFailed(results []*eval.EvalResult) int {
	n := 0
	for _, r := range results {
		if r.Error != "" {
			n++
		}
	}
	return n
}
