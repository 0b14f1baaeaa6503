package telemetry_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castlemilk/dietplanner/internal/telemetry"
)

func scrape(t *testing.T, p *telemetry.Provider) string {
	t.Helper()
	server := httptest.NewServer(p.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestNewProvider(t *testing.T) {
	p := telemetry.NewProvider()
	require.NotNil(t, p.Tracer)
	require.NotNil(t, p.Metrics)
	require.NotNil(t, p.Registry())

	// Separate registries: a second provider must not panic on registration.
	assert.NotPanics(t, func() { telemetry.NewProvider() })
}

func TestProvider_Records(t *testing.T) {
	p := telemetry.NewProvider()
	ctx := context.Background()

	p.RecordDocument(ctx, "csv")
	p.RecordDocument(ctx, "csv")
	p.RecordDocument(ctx, "")
	p.RecordExtractionFailure(ctx, "CORRUPT_DOCUMENT")
	p.RecordRisk(ctx, "Abnormal", "rules", true)
	p.RecordRisk(ctx, "Normal", "model", false)
	p.RecordMenuGroup(ctx, "Cholesterol")
	p.RecordStage(ctx, "extract", 20*time.Millisecond)
	p.RecordStoreFailure(ctx)

	out := scrape(t, p)
	assert.Contains(t, out, `dietplanner_documents_total{format="csv"} 2`)
	assert.Contains(t, out, `dietplanner_documents_total{format="manual"} 1`)
	assert.Contains(t, out, `dietplanner_extraction_failures_total{code="CORRUPT_DOCUMENT"} 1`)
	assert.Contains(t, out, `dietplanner_risk_labels_total{label="Abnormal",source="rules"} 1`)
	assert.Contains(t, out, `dietplanner_risk_labels_total{label="Normal",source="model"} 1`)
	assert.Contains(t, out, `dietplanner_model_fallbacks_total 1`)
	assert.Contains(t, out, `dietplanner_menu_groups_total{menu_group="Cholesterol"} 1`)
	assert.Contains(t, out, `dietplanner_stage_duration_seconds_count{stage="extract"} 1`)
	assert.Contains(t, out, `dietplanner_store_failures_total 1`)
	assert.Contains(t, out, "go_goroutines")
}

func TestProvider_StartSpan(t *testing.T) {
	p := telemetry.NewProvider()
	ctx, span := p.StartSpan(context.Background(), "test")
	defer span.End()
	assert.NotNil(t, ctx)
}
