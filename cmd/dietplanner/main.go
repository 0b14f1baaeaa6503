// Command dietplanner turns medical reports into weekly diet plans, either
// as an RPC server or one document at a time from the command line.
package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/castlemilk/dietplanner/internal/classifier"
	"github.com/castlemilk/dietplanner/internal/config"
	"github.com/castlemilk/dietplanner/internal/extraction"
	"github.com/castlemilk/dietplanner/internal/logging"
	"github.com/castlemilk/dietplanner/internal/pipeline"
	"github.com/castlemilk/dietplanner/internal/riskmodel"
	"github.com/castlemilk/dietplanner/internal/service"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// loader reads the effective configuration once flags are parsed.
type loader func() (*config.Config, error)

func newRootCmd() *cobra.Command {
	v := config.NewViper()
	var cfgFile string

	root := &cobra.Command{
		Use:          "dietplanner",
		Short:        "Medical report to weekly diet plan service",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	root.PersistentFlags().String("log-level", "info", "log level: debug, info, warn or error")
	_ = v.BindPFlag("log.level", root.PersistentFlags().Lookup("log-level"))

	load := func() (*config.Config, error) {
		return config.Load(v, cfgFile)
	}
	root.AddCommand(newServeCmd(v, load), newPlanCmd(load), newEvalCmd(load))
	return root
}

func bindFlag(v *viper.Viper, cmd *cobra.Command, key, flag string) {
	_ = v.BindPFlag(key, cmd.Flags().Lookup(flag))
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.Log.Level, cfg.Log.Development)
}

// dependencies holds the external services named in configuration. Either
// may be nil.
type dependencies struct {
	ocr   *extraction.OCRClient
	model classifier.RiskModel
}

func newDependencies(cfg *config.Config, logger *zap.Logger) dependencies {
	var deps dependencies
	if cfg.OCR.URL != "" {
		deps.ocr = extraction.NewOCRClient(cfg.OCR.URL, cfg.OCR.Timeout)
	}
	deps.model = riskmodel.Select(cfg.Model.Artifact, cfg.Model.URL, cfg.Model.Timeout, logger)
	return deps
}

// pipelineOptions wires OCR and the risk model from configuration.
func pipelineOptions(cfg *config.Config, logger *zap.Logger) []pipeline.Option {
	return newDependencies(cfg, logger).pipelineOptions(logger)
}

func (d dependencies) pipelineOptions(logger *zap.Logger) []pipeline.Option {
	extOpts := []extraction.Option{extraction.WithLogger(logger)}
	if d.ocr != nil {
		extOpts = append(extOpts, extraction.WithOCR(d.ocr))
	}

	riskOpts := []classifier.RiskOption{classifier.WithLogger(logger)}
	if d.model != nil {
		riskOpts = append(riskOpts, classifier.WithModel(d.model))
	}

	return []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithExtractor(extraction.NewExtractor(extOpts...)),
		pipeline.WithRiskClassifier(classifier.NewRiskClassifier(riskOpts...)),
	}
}

// readinessChecks lists the configured dependencies that can report health.
func (d dependencies) readinessChecks() map[string]service.ReadinessCheck {
	checks := make(map[string]service.ReadinessCheck)
	if d.ocr != nil {
		checks["ocr"] = d.ocr.Ready
	}
	if r, ok := d.model.(interface{ Ready(context.Context) error }); ok {
		checks["model"] = r.Ready
	}
	return checks
}
