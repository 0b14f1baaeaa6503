package riskmodel

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/castlemilk/dietplanner/internal/classifier"
	"github.com/castlemilk/dietplanner/internal/clinical"
)

// Opener returns a reader for a model artifact location.
type Opener func(ctx context.Context, location string) (io.ReadCloser, error)

// ArtifactModel loads a Booster from a local path or gs:// URL on first use.
// The loaded model, or the load error, is kept for the process lifetime.
type ArtifactModel struct {
	location string
	open     Opener
	logger   *zap.Logger

	once    sync.Once
	booster *Booster
	err     error
}

// ArtifactOption configures an ArtifactModel.
type ArtifactOption func(*ArtifactModel)

// WithOpener overrides how the artifact is read.
func WithOpener(o Opener) ArtifactOption {
	return func(m *ArtifactModel) { m.open = o }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ArtifactOption {
	return func(m *ArtifactModel) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewArtifactModel creates a lazily loaded model. Nothing is read until the
// first Predict or Load call.
func NewArtifactModel(location string, opts ...ArtifactOption) *ArtifactModel {
	m := &ArtifactModel{location: location, open: OpenArtifact, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load reads the artifact once and returns the cached result.
func (m *ArtifactModel) Load(ctx context.Context) (*Booster, error) {
	m.once.Do(func() {
		// The first caller's deadline must not poison the cached result.
		m.booster, m.err = m.load(context.WithoutCancel(ctx))
		if m.err != nil {
			m.logger.Warn("risk model unavailable", zap.String("location", m.location), zap.Error(m.err))
			return
		}
		m.logger.Info("risk model loaded", zap.String("location", m.location), zap.Int("trees", len(m.booster.trees)))
	})
	return m.booster, m.err
}

// Ready loads the artifact if needed and reports the cached load error.
func (m *ArtifactModel) Ready(ctx context.Context) error {
	_, err := m.Load(ctx)
	return err
}

func (m *ArtifactModel) load(ctx context.Context) (*Booster, error) {
	if m.location == "" {
		return nil, fmt.Errorf("no model artifact configured")
	}
	rc, err := m.open(ctx, m.location)
	if err != nil {
		return nil, fmt.Errorf("open model artifact: %w", err)
	}
	defer rc.Close()

	b, err := LoadBooster(rc)
	if err != nil {
		return nil, fmt.Errorf("load model artifact %s: %w", m.location, err)
	}
	return b, nil
}

// Predict implements classifier.RiskModel.
func (m *ArtifactModel) Predict(ctx context.Context, rec clinical.FeatureRecord) (classifier.RiskLabel, error) {
	b, err := m.Load(ctx)
	if err != nil {
		return "", err
	}
	return b.Predict(ctx, rec)
}

// OpenArtifact opens a local file or a gs://bucket/object URL.
func OpenArtifact(ctx context.Context, location string) (io.ReadCloser, error) {
	if !strings.HasPrefix(location, "gs://") {
		return os.Open(location)
	}

	bucket, object, err := parseGCSURL(location)
	if err != nil {
		return nil, err
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("read gs://%s/%s: %w", bucket, object, err)
	}
	return &gcsReader{Reader: r, client: client}, nil
}

type gcsReader struct {
	*storage.Reader
	client *storage.Client
}

func (g *gcsReader) Close() error {
	err := g.Reader.Close()
	if cerr := g.client.Close(); err == nil {
		err = cerr
	}
	return err
}

func parseGCSURL(location string) (bucket, object string, err error) {
	rest := strings.TrimPrefix(location, "gs://")
	bucket, object, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("invalid gcs url %q, want gs://bucket/object", location)
	}
	return bucket, object, nil
}
