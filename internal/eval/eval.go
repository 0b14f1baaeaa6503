// Package eval scores analysis strategies (rules only, trained model, …)
// against labelled report fixtures.
package eval

import (
	"context"
	"fmt"
	"io"
	"math"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/castlemilk/dietplanner/internal/classifier"
	"github.com/castlemilk/dietplanner/internal/clinical"
	"github.com/castlemilk/dietplanner/internal/pipeline"
)

// GroundTruth is the labelled outcome for one fixture. Fields missing from
// Features are expected to be absent.
type GroundTruth struct {
	Name       string                     `json:"name"`
	Features   map[clinical.Field]float64 `json:"features"`
	Conditions []string                   `json:"conditions"`
	RiskLabel  string                     `json:"risk_label"`
}

// Prediction is what a strategy produced for one fixture.
type Prediction struct {
	Features   clinical.FeatureRecord
	Conditions []string
	RiskLabel  classifier.RiskLabel
}

// StrategyFunc analyses report text.
type StrategyFunc func(ctx context.Context, text string) (*Prediction, error)

// CountMetrics measures condition detection.
type CountMetrics struct {
	Expected  int
	Predicted int
	Matched   int
	Precision float64
	Recall    float64
	F1        float64
}

// EvalResult holds metrics from running one strategy on one fixture.
type EvalResult struct {
	Strategy      string
	Fixture       string
	Conditions    CountMetrics
	FieldAccuracy float64
	RiskCorrect   bool
	OverallScore  float64
	Duration      time.Duration
	Error         string // non-empty if the strategy failed
}

// PipelineStrategy runs the full pipeline on the fixture text.
func PipelineStrategy(p *pipeline.Pipeline) StrategyFunc {
	return func(ctx context.Context, text string) (*Prediction, error) {
		a, err := p.Run(ctx, pipeline.Request{Text: text})
		if err != nil {
			return nil, err
		}
		return &Prediction{
			Features:   a.Features,
			Conditions: a.Result.DetectedConditions.Strings(),
			RiskLabel:  a.Result.RiskLabel,
		}, nil
	}
}

// --- Metric Functions ---

// ComputeMetrics compares a prediction against ground truth.
func ComputeMetrics(strategy, fixture string, pred *Prediction, truth *GroundTruth, duration time.Duration) *EvalResult {
	result := &EvalResult{
		Strategy:   strategy,
		Fixture:    fixture,
		Duration:   duration,
		Conditions: conditionMetrics(pred.Conditions, truth.Conditions),
	}

	var fieldsOK int
	for _, f := range clinical.Fields {
		want, expected := truth.Features[f]
		got, present := pred.Features.Get(f).Get()
		switch {
		case !expected && !present:
			fieldsOK++
		case expected && present && valueMatch(got, want):
			fieldsOK++
		}
	}
	result.FieldAccuracy = float64(fieldsOK) / float64(len(clinical.Fields))
	result.RiskCorrect = string(pred.RiskLabel) == truth.RiskLabel

	risk := 0.0
	if result.RiskCorrect {
		risk = 1
	}
	result.OverallScore = 0.40*result.Conditions.F1 +
		0.40*result.FieldAccuracy +
		0.20*risk
	return result
}

func conditionMetrics(predicted, expected []string) CountMetrics {
	want := make(map[string]bool, len(expected))
	for _, c := range expected {
		want[c] = true
	}
	m := CountMetrics{Expected: len(expected), Predicted: len(predicted)}
	for _, c := range predicted {
		if want[c] {
			m.Matched++
			delete(want, c)
		}
	}

	if m.Predicted > 0 {
		m.Precision = float64(m.Matched) / float64(m.Predicted)
	}
	if m.Expected > 0 {
		m.Recall = float64(m.Matched) / float64(m.Expected)
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	return m
}

// valueMatch returns true if values are within 0.05 or 1%.
func valueMatch(a, b float64) bool {
	diff := math.Abs(a - b)
	if diff <= 0.05 {
		return true
	}
	return b != 0 && diff/math.Abs(b) < 0.01
}

// --- Runner ---

// RunEval executes all strategies against all fixtures. Strategies run in
// name order so reports are stable.
func RunEval(ctx context.Context, strategies map[string]StrategyFunc, fixtures []*Fixture) []*EvalResult {
	names := make([]string, 0, len(strategies))
	for name := range strategies {
		names = append(names, name)
	}
	sort.Strings(names)

	var results []*EvalResult
	for _, fixture := range fixtures {
		for _, name := range names {
			start := time.Now()
			pred, err := strategies[name](ctx, fixture.Text)
			elapsed := time.Since(start)

			if err != nil {
				results = append(results, &EvalResult{
					Strategy: name,
					Fixture:  fixture.Name,
					Duration: elapsed,
					Error:    err.Error(),
				})
				continue
			}
			results = append(results, ComputeMetrics(name, fixture.Name, pred, fixture.GroundTruth, elapsed))
		}
	}
	return results
}

// --- Summary Printer ---

// PrintSummary writes a comparison table and per-strategy averages.
func PrintSummary(w io.Writer, results []*EvalResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "Strategy\tFixture\tF1\tFields%\tRisk\tScore\tTime\tMatch\tError")
	fmt.Fprintln(tw, "--------\t-------\t--\t-------\t----\t-----\t----\t-----\t-----")

	for _, r := range results {
		risk := "miss"
		if r.RiskCorrect {
			risk = "ok"
		}
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%.0f%%\t%s\t%.2f\t%s\t%d/%d\t%s\n",
			r.Strategy,
			r.Fixture,
			r.Conditions.F1,
			r.FieldAccuracy*100,
			risk,
			r.OverallScore,
			r.Duration.Round(time.Microsecond),
			r.Conditions.Matched,
			r.Conditions.Expected,
			truncate(r.Error, 30),
		)
	}
	tw.Flush()

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Strategy Averages ===")

	scores := make(map[string][]float64)
	f1s := make(map[string][]float64)
	totals := make(map[string]int)
	for _, r := range results {
		totals[r.Strategy]++
		if r.Error == "" {
			scores[r.Strategy] = append(scores[r.Strategy], r.OverallScore)
			f1s[r.Strategy] = append(f1s[r.Strategy], r.Conditions.F1)
		}
	}
	names := make([]string, 0, len(totals))
	for name := range totals {
		names = append(names, name)
	}
	sort.Strings(names)

	tw2 := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw2, "Strategy\tAvg Score\tAvg F1\tFixtures")
	fmt.Fprintln(tw2, "--------\t---------\t------\t--------")
	for _, name := range names {
		fmt.Fprintf(tw2, "%s\t%.3f\t%.3f\t%d/%d\n",
			name, avg(scores[name]), avg(f1s[name]), len(scores[name]), totals[name])
	}
	tw2.Flush()
}

func avg(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
