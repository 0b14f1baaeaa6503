package classifier

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/castlemilk/dietplanner/internal/clinical"
)

// RiskLabel is the numeric classifier output.
type RiskLabel string

const (
	RiskNormal   RiskLabel = "Normal"
	RiskAbnormal RiskLabel = "Abnormal"
	RiskUnknown  RiskLabel = "Unknown"
)

// Valid reports whether l is a decided label.
func (l RiskLabel) Valid() bool {
	return l == RiskNormal || l == RiskAbnormal
}

// RiskSource records which path produced a label.
type RiskSource string

const (
	SourceModel RiskSource = "model"
	SourceRules RiskSource = "rules"
	SourceNone  RiskSource = "none"
)

// Rule thresholds. A value at or above the threshold raises a flag.
const (
	GlucoseThreshold       = 126.0
	CholesterolThreshold   = 240.0
	BloodPressureThreshold = 140.0
	BMIThreshold           = 30.0
)

var ruleThresholds = []struct {
	field     clinical.Field
	threshold float64
	flag      string
}{
	{clinical.FieldGlucose, GlucoseThreshold, "glucose >= 126"},
	{clinical.FieldCholesterol, CholesterolThreshold, "cholesterol >= 240"},
	{clinical.FieldBloodPressure, BloodPressureThreshold, "blood_pressure >= 140"},
	{clinical.FieldBMI, BMIThreshold, "bmi >= 30"},
}

// RiskModel is a trained binary classifier over the five clinical features.
//
//go:generate mockgen -source=risk.go -destination=risk_mock_test.go -package=classifier
type RiskModel interface {
	Predict(ctx context.Context, rec clinical.FeatureRecord) (RiskLabel, error)
}

// ModelError wraps any failure of the trained-model path. It never reaches
// callers of Classify; it is logged and the rules take over.
type ModelError struct {
	Op    string
	Cause error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("risk model %s: %v", e.Op, e.Cause)
}

func (e *ModelError) Unwrap() error {
	return e.Cause
}

// RiskAssessment is the outcome of numeric classification.
type RiskAssessment struct {
	Label   RiskLabel        `json:"risk_label"`
	Source  RiskSource       `json:"source"`
	Flags   []string         `json:"flags,omitempty"`
	Missing []clinical.Field `json:"missing,omitempty"`
	// ModelErr is set when the model path failed and the rules were used.
	ModelErr error `json:"-"`
}

// RiskClassifier labels complete feature records, preferring the trained
// model and falling back to fixed thresholds.
type RiskClassifier struct {
	model  RiskModel
	logger *zap.Logger
}

// RiskOption configures a RiskClassifier.
type RiskOption func(*RiskClassifier)

// WithModel sets the trained model. A nil model means rules only.
func WithModel(m RiskModel) RiskOption {
	return func(c *RiskClassifier) { c.model = m }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) RiskOption {
	return func(c *RiskClassifier) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewRiskClassifier creates a new RiskClassifier.
func NewRiskClassifier(opts ...RiskOption) *RiskClassifier {
	c := &RiskClassifier{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify returns Unknown unless every field is present, finite and
// non-negative. Model failures are absorbed.
func (c *RiskClassifier) Classify(ctx context.Context, rec clinical.FeatureRecord) RiskAssessment {
	if missing := unusable(rec); len(missing) > 0 {
		return RiskAssessment{Label: RiskUnknown, Source: SourceNone, Missing: missing}
	}

	var modelErr error
	if c.model != nil {
		label, err := c.predict(ctx, rec)
		if err == nil {
			return RiskAssessment{Label: label, Source: SourceModel}
		}
		modelErr = err
		c.logger.Warn("risk model failed, using rule fallback", zap.Error(err))
	}

	label, flags := RuleClassify(rec)
	return RiskAssessment{Label: label, Source: SourceRules, Flags: flags, ModelErr: modelErr}
}

func (c *RiskClassifier) predict(ctx context.Context, rec clinical.FeatureRecord) (label RiskLabel, err error) {
	defer func() {
		if r := recover(); r != nil {
			label = ""
			err = &ModelError{Op: "predict", Cause: fmt.Errorf("panic: %v", r)}
		}
	}()

	label, err = c.model.Predict(ctx, rec)
	if err != nil {
		return "", &ModelError{Op: "predict", Cause: err}
	}
	if !label.Valid() {
		return "", &ModelError{Op: "predict", Cause: fmt.Errorf("unexpected label %q", label)}
	}
	return label, nil
}

// RuleClassify applies the threshold rules to a complete record.
func RuleClassify(rec clinical.FeatureRecord) (RiskLabel, []string) {
	var flags []string
	for _, rt := range ruleThresholds {
		if v, ok := rec.Get(rt.field).Get(); ok && v >= rt.threshold {
			flags = append(flags, rt.flag)
		}
	}
	if len(flags) > 0 {
		return RiskAbnormal, flags
	}
	return RiskNormal, nil
}

// unusable lists fields that are absent, non-finite or negative.
func unusable(rec clinical.FeatureRecord) []clinical.Field {
	var out []clinical.Field
	for _, f := range clinical.Fields {
		v, ok := rec.Get(f).Get()
		if !ok || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			out = append(out, f)
		}
	}
	return out
}
