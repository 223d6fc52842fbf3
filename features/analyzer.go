package features

import (
	"context"
	"fmt"

	"github.com/RyanBlaney/beatwizard/algorithms/tonal"
	"github.com/RyanBlaney/beatwizard/logging"
	"github.com/RyanBlaney/beatwizard/transcode"
)

// Analysis is the result of analyzing one audio input
type Analysis struct {
	Features *FeatureVector         `json:"features"`
	Waveform transcode.WaveformInfo `json:"waveform"`
	Key      string                 `json:"key"`
}

// Analyzer composes decoding and feature extraction
type Analyzer struct {
	loader    *transcode.Loader
	extractor *Extractor
	logger    logging.Logger
}

// NewAnalyzer creates an analyzer. The loader decodes straight to the
// extraction sample rate.
func NewAnalyzer(loaderConfig transcode.LoaderConfig, config Config) *Analyzer {
	loaderConfig.TargetSampleRate = config.SampleRate
	return &Analyzer{
		loader:    transcode.NewLoader(loaderConfig),
		extractor: NewExtractor(config),
		logger: logging.WithFields(logging.Fields{
			"component": "analyzer",
		}),
	}
}

// AnalyzeBytes decodes and analyzes raw audio bytes
func (a *Analyzer) AnalyzeBytes(ctx context.Context, data []byte) (*Analysis, error) {
	w, err := a.loader.Load(ctx, data)
	if err != nil {
		return nil, err
	}
	return a.AnalyzeWaveform(ctx, w)
}

// AnalyzeFile decodes and analyzes an audio file
func (a *Analyzer) AnalyzeFile(ctx context.Context, path string) (*Analysis, error) {
	ctx = logging.ContextWithFields(ctx, logging.Fields{"file": path})

	w, err := a.loader.LoadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return a.AnalyzeWaveform(ctx, w)
}

// AnalyzeWaveform extracts features and, when enabled, the key of a decoded
// waveform
func (a *Analyzer) AnalyzeWaveform(ctx context.Context, w *transcode.Waveform) (*Analysis, error) {
	fv, err := a.extractor.Extract(ctx, w)
	if err != nil {
		return nil, err
	}

	analysis := &Analysis{
		Features: fv,
		Waveform: w.Info(),
		Key:      tonal.DefaultKey,
	}

	if a.extractor.Config().EstimateKey {
		key, err := tonal.NewKeyEstimator(w.SampleRate).Estimate(w.Samples)
		if err != nil {
			return nil, fmt.Errorf("key estimation: %w", err)
		}
		analysis.Key = key.Name
	}

	a.logger.WithContext(ctx).Debug("Analysis completed", logging.Fields{
		"key":      analysis.Key,
		"tempo":    fv.Tempo,
		"duration": fv.Duration,
	})

	return analysis, nil
}
