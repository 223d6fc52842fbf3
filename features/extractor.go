package features

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/RyanBlaney/beatwizard/algorithms/common"
	"github.com/RyanBlaney/beatwizard/algorithms/harmonic"
	"github.com/RyanBlaney/beatwizard/algorithms/spectral"
	"github.com/RyanBlaney/beatwizard/algorithms/temporal"
	"github.com/RyanBlaney/beatwizard/algorithms/windowing"
	"github.com/RyanBlaney/beatwizard/logging"
	"github.com/RyanBlaney/beatwizard/transcode"
)

// Extractor turns a waveform into a FeatureVector. It holds no state
// between calls and may be shared by concurrent callers.
type Extractor struct {
	config Config
	logger logging.Logger
}

// stage computes a disjoint subset of the feature vector
type stage struct {
	name string
	run  func(fv *FeatureVector) error
}

// analysisInput is the shared, read-only input of every stage
type analysisInput struct {
	waveform   *transcode.Waveform
	stft       *spectral.STFTResult
	windowSize int
	hopSize    int
}

// NewExtractor creates a feature extractor
func NewExtractor(config Config) *Extractor {
	return &Extractor{
		config: config,
		logger: logging.WithFields(logging.Fields{
			"component": "feature_extractor",
		}),
	}
}

// Config returns the extractor configuration
func (e *Extractor) Config() Config {
	return e.config
}

// Extract computes every feature of the waveform. The only failures are an
// unusable waveform and a cancelled context; degenerate signals produce
// zero-valued features.
func (e *Extractor) Extract(ctx context.Context, w *transcode.Waveform) (*FeatureVector, error) {
	logger := e.logger.WithContext(ctx).WithFields(logging.Fields{
		"function": "Extract",
	})

	if err := e.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid extractor config: %w", err)
	}
	if w == nil {
		return nil, fmt.Errorf("nil waveform")
	}
	if w.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid waveform sample rate: %d", w.SampleRate)
	}
	if len(w.Samples) == 0 {
		return nil, &transcode.EmptyAudioError{}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	resampled, err := transcode.Resample(w, e.config.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("resample: %w", err)
	}

	windowSize, hopSize := e.config.FrameSizes()
	stft, err := spectral.NewSTFT().Compute(resampled.Samples, windowSize, hopSize, resampled.SampleRate, windowing.NewPeriodicHann(windowSize))
	if err != nil {
		return nil, fmt.Errorf("stft: %w", err)
	}

	in := &analysisInput{
		waveform:   resampled,
		stft:       stft,
		windowSize: windowSize,
		hopSize:    hopSize,
	}

	fv := &FeatureVector{Duration: w.Duration()}
	stages := []stage{
		{"spectral", func(fv *FeatureVector) error { return e.spectralStage(in, fv) }},
		{"energy", func(fv *FeatureVector) error { return e.energyStage(in, fv) }},
		{"rhythm", func(fv *FeatureVector) error { return e.rhythmStage(in, fv) }},
		{"hpss", func(fv *FeatureVector) error { return e.hpssStage(in, fv) }},
		{"timbre", func(fv *FeatureVector) error { return e.timbreStage(in, fv) }},
		{"stereo", func(fv *FeatureVector) error { return e.stereoStage(in, fv) }},
	}

	if err := e.runStages(ctx, stages, fv); err != nil {
		return nil, err
	}

	fv.sanitize()

	logger.Debug("Feature extraction completed", logging.Fields{
		"sample_rate":  resampled.SampleRate,
		"frames":       stft.TimeFrames,
		"window_size":  windowSize,
		"hop_size":     hopSize,
		"tempo":        fv.Tempo,
		"extract_time": time.Since(start).Seconds(),
	})

	return fv, nil
}

// runStages runs every stage against the same vector. Stages write
// disjoint fields, so running them concurrently needs no locking and the
// result does not depend on completion order.
func (e *Extractor) runStages(ctx context.Context, stages []stage, fv *FeatureVector) error {
	errs := make([]error, len(stages))

	if e.config.Parallel {
		var wg sync.WaitGroup
		for i, s := range stages {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := ctx.Err(); err != nil {
					errs[i] = err
					return
				}
				errs[i] = s.run(fv)
			}()
		}
		wg.Wait()
		if err := ctx.Err(); err != nil {
			return err
		}
	} else {
		for i, s := range stages {
			if err := ctx.Err(); err != nil {
				return err
			}
			errs[i] = s.run(fv)
		}
	}

	for i, err := range errs {
		if err != nil {
			return fmt.Errorf("%s stage: %w", stages[i].name, err)
		}
	}
	return ctx.Err()
}

func (e *Extractor) spectralStage(in *analysisInput, fv *FeatureVector) error {
	descriptors := spectral.NewSpectralDescriptors(in.stft).
		WithRolloffThreshold(e.config.RolloffThreshold).
		ComputeFrames(in.stft.Magnitude)
	fv.SpectralCentroid = common.Mean(descriptors.Centroid)
	fv.SpectralRolloff = common.Mean(descriptors.Rolloff)
	fv.SpectralBandwidth = common.Mean(descriptors.Bandwidth)

	fv.SpectralContrast = spectral.NewSpectralContrast(in.stft, e.config.ContrastBands).ComputeMean(in.stft.Magnitude)

	bands := spectral.NewBandEnergy(spectral.DefaultBands()...).Compute(in.stft)
	fv.SubBassEnergy = bands.Energy(spectral.BandSubBass)
	fv.BassEnergy = bands.Energy(spectral.BandBass)
	fv.KickEnergy = bands.Energy(spectral.BandKick)
	fv.SnareEnergy = bands.Energy(spectral.BandSnare)
	fv.HihatEnergy = bands.Energy(spectral.BandHiHat)

	fv.BassToTotalRatio = common.SafeDivide(fv.BassEnergy, bands.Total)
	fv.KickToSnareRatio = common.SafeDivide(fv.KickEnergy, fv.SnareEnergy)
	fv.HihatToKickRatio = common.SafeDivide(fv.HihatEnergy, fv.KickEnergy)
	return nil
}

func (e *Extractor) energyStage(in *analysisInput, fv *FeatureVector) error {
	stats := temporal.NewEnergy(in.windowSize, in.hopSize).Compute(in.waveform.Samples)
	fv.EnergyMean = stats.Mean
	fv.EnergyStd = stats.Std

	if stats.IsSilent(e.config.SilenceThreshold) {
		e.logger.Warn("Signal is silent or near silent, features default to zero", logging.Fields{
			"energy_mean": stats.Mean,
			"frames":      len(stats.Frames),
		})
	}
	return nil
}

// rhythmStage frames the onset envelope at half the window and a quarter
// of the hop of the shared STFT
func (e *Extractor) rhythmStage(in *analysisInput, fv *FeatureVector) error {
	cfg := temporal.DefaultRhythmConfig(max(in.windowSize/2, 1), max(in.hopSize/4, 1))
	rhythm, err := temporal.NewRhythmAnalyzer(cfg).Analyze(in.waveform.Samples, in.waveform.SampleRate)
	if err != nil {
		return err
	}

	fv.Tempo = rhythm.Tempo
	fv.RhythmDensity = rhythm.RhythmDensity
	fv.BeatConsistency = rhythm.BeatConsistency
	fv.SyncopationScore = rhythm.SyncopationScore
	fv.GrooveStrength = rhythm.GrooveStrength
	fv.AverageBeatStrength = rhythm.AverageBeatStrength
	fv.RhythmicRegularity = rhythm.RhythmicRegularity
	fv.SectionChanges = rhythm.SectionChanges
	return nil
}

func (e *Extractor) hpssStage(in *analysisInput, fv *FeatureVector) error {
	kernel := e.config.HPSSKernelSize
	energy := harmonic.NewHPSS(kernel, kernel).Energy(in.stft)
	fv.HarmonicEnergy = energy.Harmonic
	fv.PercussiveEnergy = energy.Percussive
	fv.PercussionHarmonicRatio = energy.Ratio
	return nil
}

// timbreStage keeps the first five MFCC means, coefficient 0 included
func (e *Extractor) timbreStage(in *analysisInput, fv *FeatureVector) error {
	params := spectral.DefaultMFCCParams()
	if e.config.NumMFCC > 0 {
		params.NumCoefficients = e.config.NumMFCC
	}

	means, err := spectral.NewMFCCWithParams(in.waveform.SampleRate, params).ComputeMeans(in.stft.Magnitude)
	if err != nil {
		return err
	}
	if len(means) < 5 {
		return fmt.Errorf("expected at least 5 MFCCs, got %d", len(means))
	}

	fv.MFCC1 = means[0]
	fv.MFCC2 = means[1]
	fv.MFCC3 = means[2]
	fv.MFCC4 = means[3]
	fv.MFCC5 = means[4]
	return nil
}

// stereoStage is the mean absolute channel difference, 0 for mono input
func (e *Extractor) stereoStage(in *analysisInput, fv *FeatureVector) error {
	w := in.waveform
	if !w.IsStereo() || len(w.Left) == 0 {
		fv.StereoWidth = 0
		return nil
	}

	sum := 0.0
	for i := range w.Left {
		sum += math.Abs(w.Left[i] - w.Right[i])
	}
	fv.StereoWidth = sum / float64(len(w.Left))
	return nil
}
