package riskmodel

import (
	"time"

	"go.uber.org/zap"

	"github.com/castlemilk/dietplanner/internal/classifier"
)

// Select picks the configured model: a local or gs:// artifact first, then a
// model service URL. It returns nil when neither is set, leaving the
// classifier on its rules.
func Select(artifact, url string, timeout time.Duration, logger *zap.Logger) classifier.RiskModel {
	switch {
	case artifact != "":
		return NewArtifactModel(artifact, WithLogger(logger))
	case url != "":
		return NewClient(url, timeout)
	default:
		return nil
	}
}
