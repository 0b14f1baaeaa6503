// Package pipeline runs one analysis: document extraction, clinical parsing,
// condition and risk classification, diet policy and the weekly plan.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/castlemilk/dietplanner/internal/classifier"
	"github.com/castlemilk/dietplanner/internal/clinical"
	"github.com/castlemilk/dietplanner/internal/diet"
	"github.com/castlemilk/dietplanner/internal/extraction"
	"github.com/castlemilk/dietplanner/internal/store"
	"github.com/castlemilk/dietplanner/internal/telemetry"
)

// FormatManual labels analyses of pasted text.
const FormatManual = "manual"

// CholesterolHintThreshold is the total cholesterol at which the form hint
// counts as a cholesterol finding.
const CholesterolHintThreshold = 200.0

const previewRunes = 1000

// Hints are clinical facts entered alongside the document.
type Hints struct {
	Diabetes         bool    `json:"diabetes"`
	TotalCholesterol float64 `json:"total_cholesterol,omitempty"`
}

// keywords returns the detection keywords implied by the hints.
func (h Hints) keywords() []string {
	var kw []string
	if h.Diabetes {
		kw = append(kw, "diabetes")
	}
	if h.TotalCholesterol >= CholesterolHintThreshold {
		kw = append(kw, "cholesterol")
	}
	return kw
}

// Request is one analysis request. Text is used only when Document is nil.
type Request struct {
	Document   *extraction.Document
	Text       string
	Preference diet.Preference
	Hints      Hints
}

// Result is the canonical analysis output.
type Result struct {
	DetectedConditions classifier.ConditionSet `json:"detected_conditions"`
	RiskLabel          classifier.RiskLabel    `json:"risk_label"`
	AllowedFoods       []string                `json:"allowed_foods"`
	RestrictedFoods    []string                `json:"restricted_foods"`
	DietAdvice         string                  `json:"diet_advice"`
	LifestyleAdvice    string                  `json:"lifestyle_advice"`
	WeeklyPlan         diet.WeeklyPlan         `json:"weekly_plan"`
}

// Analysis is a Result plus the metadata gathered on the way.
type Analysis struct {
	ID             string                    `json:"id"`
	CreatedAt      time.Time                 `json:"created_at"`
	Result         Result                    `json:"result"`
	MenuGroup      diet.MenuGroup            `json:"menu_group"`
	Preference     diet.Preference           `json:"dietary_preference"`
	Features       clinical.FeatureRecord    `json:"features"`
	Risk           classifier.RiskAssessment `json:"risk"`
	Patient        clinical.Patient          `json:"patient"`
	Format         string                    `json:"format"`
	Diagnostics    []string                  `json:"diagnostics"`
	CatalogVersion string                    `json:"catalog_version"`
	TextPreview    string                    `json:"text_preview"`
}

// Pipeline wires the analysis stages together. It is safe for concurrent use.
type Pipeline struct {
	extractor *extraction.Extractor
	detector  *classifier.ConditionDetector
	risk      *classifier.RiskClassifier
	planner   *diet.Planner
	store     store.Store
	telemetry *telemetry.Provider
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithExtractor sets the document extractor.
func WithExtractor(e *extraction.Extractor) Option {
	return func(p *Pipeline) { p.extractor = e }
}

// WithRiskClassifier sets the numeric risk classifier.
func WithRiskClassifier(c *classifier.RiskClassifier) Option {
	return func(p *Pipeline) { p.risk = c }
}

// WithPlanner sets the meal planner.
func WithPlanner(pl *diet.Planner) Option {
	return func(p *Pipeline) { p.planner = pl }
}

// WithStore records an analysis event per run.
func WithStore(s store.Store) Option {
	return func(p *Pipeline) { p.store = s }
}

// WithTelemetry sets the metrics and tracing provider.
func WithTelemetry(t *telemetry.Provider) Option {
	return func(p *Pipeline) { p.telemetry = t }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a pipeline. Unset components get their defaults: no OCR,
// rules-only risk, the embedded catalog and no event store.
func New(opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		detector: classifier.NewConditionDetector(),
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.extractor == nil {
		p.extractor = extraction.NewExtractor(extraction.WithLogger(p.logger))
	}
	if p.risk == nil {
		p.risk = classifier.NewRiskClassifier(classifier.WithLogger(p.logger))
	}
	if p.planner == nil {
		catalog, err := diet.DefaultCatalog()
		if err != nil {
			return nil, fmt.Errorf("load meal catalog: %w", err)
		}
		p.planner = diet.NewPlanner(catalog)
	}
	if p.telemetry == nil {
		p.telemetry = telemetry.NewProvider()
	}
	return p, nil
}

// Run executes one analysis. Only extraction failures, a request with
// nothing to analyse and an unknown preference are returned as errors;
// every other problem degrades the result.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Analysis, error) {
	started := p.now()
	ctx, span := p.telemetry.StartSpan(ctx, "pipeline.run")
	defer span.End()

	pref := req.Preference
	if pref == "" {
		pref = diet.DefaultPreference
	}
	if !pref.Valid() {
		err := fmt.Errorf("%w: %q", diet.ErrUnknownPreference, req.Preference)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	a := &Analysis{
		ID:             uuid.New().String(),
		CreatedAt:      started.UTC(),
		Preference:     pref,
		CatalogVersion: p.planner.Catalog().Version(),
		Diagnostics:    []string{},
	}
	span.SetAttributes(attribute.String("analysis.id", a.ID))

	var ext *extraction.Extraction
	err := p.stage(ctx, "extract", func(ctx context.Context) error {
		var err error
		ext, err = p.extract(ctx, req)
		return err
	})
	if err != nil {
		if code := extraction.CodeOf(err); code != "" {
			p.telemetry.RecordExtractionFailure(ctx, string(code))
		}
		span.SetStatus(codes.Error, err.Error())
		p.logger.Info("analysis rejected", zap.String("analysis_id", a.ID), zap.Error(err))
		return nil, err
	}
	a.Format = string(ext.Format)
	if ext.Format == "" {
		a.Format = FormatManual
	}
	a.Diagnostics = append(a.Diagnostics, ext.Diagnostics...)
	a.TextPreview = preview(ext.Text)
	p.telemetry.RecordDocument(ctx, a.Format)

	_ = p.stage(ctx, "parse", func(context.Context) error {
		a.Features = features(ext, req.Hints)
		a.Patient = clinical.ParsePatient(ext.Text)
		return nil
	})

	var conditions classifier.ConditionSet
	_ = p.stage(ctx, "classify", func(ctx context.Context) error {
		conditions = p.detector.Detect(detectionInput(ext.Text, req.Hints))
		a.Risk = p.risk.Classify(ctx, a.Features)
		p.telemetry.RecordRisk(ctx, string(a.Risk.Label), string(a.Risk.Source), a.Risk.ModelErr != nil)
		return nil
	})

	var policy diet.Policy
	var week diet.WeeklyPlan
	err = p.stage(ctx, "plan", func(context.Context) error {
		policy = diet.Resolve(conditions, pref)
		var err error
		week, err = p.planner.Plan(policy.Group, pref)
		return err
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("plan meals: %w", err)
	}
	p.telemetry.RecordMenuGroup(ctx, string(policy.Group))

	a.MenuGroup = policy.Group
	a.Result = Result{
		DetectedConditions: conditions,
		RiskLabel:          a.Risk.Label,
		AllowedFoods:       policy.AllowedFoods,
		RestrictedFoods:    policy.RestrictedFoods,
		DietAdvice:         policy.DietAdviceText(),
		LifestyleAdvice:    policy.LifestyleAdviceText(),
		WeeklyPlan:         week,
	}

	elapsed := p.now().Sub(started)
	p.record(ctx, a, req, elapsed)
	p.logger.Info("analysis complete",
		zap.String("analysis_id", a.ID),
		zap.String("format", a.Format),
		zap.Strings("conditions", conditions.Strings()),
		zap.String("risk_label", string(a.Risk.Label)),
		zap.String("risk_source", string(a.Risk.Source)),
		zap.String("menu_group", string(a.MenuGroup)),
		zap.Duration("duration", elapsed),
	)
	return a, nil
}

func (p *Pipeline) extract(ctx context.Context, req Request) (*extraction.Extraction, error) {
	if req.Document != nil {
		return p.extractor.Extract(ctx, *req.Document)
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, extraction.InvalidDocument("no document or text supplied")
	}
	return &extraction.Extraction{Text: text}, nil
}

// stage runs fn under its own span and records its latency.
func (p *Pipeline) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := p.telemetry.StartSpan(ctx, "pipeline."+name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	p.telemetry.RecordStage(ctx, name, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// record stores the analysis event. Failures are logged, never returned.
func (p *Pipeline) record(ctx context.Context, a *Analysis, req Request, elapsed time.Duration) {
	if p.store == nil {
		return
	}
	event := &store.AnalysisEvent{
		ID:             a.ID,
		CreatedAt:      a.CreatedAt,
		Format:         a.Format,
		Conditions:     a.Result.DetectedConditions.Strings(),
		RiskLabel:      string(a.Risk.Label),
		RiskSource:     string(a.Risk.Source),
		MenuGroup:      string(a.MenuGroup),
		Preference:     string(a.Preference),
		CatalogVersion: a.CatalogVersion,
		Diagnostics:    len(a.Diagnostics),
		DurationMillis: elapsed.Milliseconds(),
	}
	if req.Document != nil {
		event.DocumentName = req.Document.Name
	}
	if err := p.store.CreateAnalysisEvent(ctx, event); err != nil {
		p.telemetry.RecordStoreFailure(ctx)
		p.logger.Warn("failed to record analysis event", zap.String("analysis_id", a.ID), zap.Error(err))
	}
}

// features merges the CSV record over the text-parsed values, then applies
// the cholesterol hint to a still-absent field.
func features(ext *extraction.Extraction, hints Hints) clinical.FeatureRecord {
	rec := clinical.FromRecord(ext.Record).Merge(clinical.Parse(ext.Text))
	if hints.TotalCholesterol > 0 && !rec.Cholesterol.Present() {
		rec.Cholesterol = clinical.Of(hints.TotalCholesterol)
	}
	return rec
}

func detectionInput(text string, hints Hints) string {
	kw := hints.keywords()
	if len(kw) == 0 {
		return text
	}
	return text + "\n" + strings.Join(kw, " ")
}

func preview(text string) string {
	if utf8.RuneCountInString(text) <= previewRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:previewRunes])
}

// IsUserError reports whether err stems from the request rather than the service.
func IsUserError(err error) bool {
	var extErr *extraction.ExtractionError
	if errors.As(err, &extErr) {
		return extErr.Fatal()
	}
	return errors.Is(err, diet.ErrUnknownPreference)
}
