package features

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/RyanBlaney/beatwizard/transcode"
)

func clickTrack(bpm, seconds float64, sampleRate int) []float64 {
	signal := make([]float64, int(seconds*float64(sampleRate)))
	step := 60.0 / bpm * float64(sampleRate)
	for pos := 0.0; int(pos) < len(signal); pos += step {
		signal[int(pos)] = 1.0
	}
	return signal
}

func sine(freq, amplitude float64, sampleRate, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

func mustWaveform(t *testing.T, samples []float64, sampleRate int) *transcode.Waveform {
	t.Helper()
	w, err := transcode.NewWaveform(samples, sampleRate)
	if err != nil {
		t.Fatalf("NewWaveform: %v", err)
	}
	return w
}

func extract(t *testing.T, w *transcode.Waveform) *FeatureVector {
	t.Helper()
	fv, err := NewExtractor(DefaultConfig()).Extract(context.Background(), w)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if err := fv.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return fv
}

func TestExtractClickTrack(t *testing.T) {
	fv := extract(t, mustWaveform(t, clickTrack(120, 2, 44100), 44100))

	if math.Abs(fv.Tempo-120) > 2 {
		t.Errorf("tempo = %.2f, want 120±2", fv.Tempo)
	}
	if fv.BeatConsistency <= 10 {
		t.Errorf("beat consistency = %v, want > 10", fv.BeatConsistency)
	}
	if fv.SectionChanges != 0 {
		t.Errorf("section changes = %v, want 0", fv.SectionChanges)
	}
	if math.Abs(fv.Duration-2.0) > 1e-9 {
		t.Errorf("duration = %v, want 2.0", fv.Duration)
	}
	if fv.BassToTotalRatio < 0 || fv.BassToTotalRatio > 1 {
		t.Errorf("bass to total ratio = %v, want in [0, 1]", fv.BassToTotalRatio)
	}
}

func TestExtractClickTrackOddOffset(t *testing.T) {
	// every click lands on an odd source index, between the samples kept
	// by a 2:1 decimation
	signal := make([]float64, 2*44100)
	for pos := 1; pos < len(signal); pos += 22050 {
		signal[pos] = 1.0
	}
	fv := extract(t, mustWaveform(t, signal, 44100))

	if math.Abs(fv.Tempo-120) > 2 {
		t.Errorf("tempo = %.2f, want 120±2", fv.Tempo)
	}
	if fv.EnergyMean <= 0 {
		t.Errorf("energy mean = %v, want > 0", fv.EnergyMean)
	}
	if fv.BeatConsistency <= 10 {
		t.Errorf("beat consistency = %v, want > 10", fv.BeatConsistency)
	}
}

func TestExtractSilence(t *testing.T) {
	fv := extract(t, mustWaveform(t, make([]float64, 22050), 22050))

	zero := map[string]float64{
		"energy_mean":               fv.EnergyMean,
		"bass_energy":               fv.BassEnergy,
		"percussive_energy":         fv.PercussiveEnergy,
		"bass_to_total_ratio":       fv.BassToTotalRatio,
		"percussion_harmonic_ratio": fv.PercussionHarmonicRatio,
		"kick_to_snare_ratio":       fv.KickToSnareRatio,
		"hihat_to_kick_ratio":       fv.HihatToKickRatio,
		"beat_consistency":          fv.BeatConsistency,
		"tempo":                     fv.Tempo,
		"mfcc_1":                    fv.MFCC1,
		"mfcc_2":                    fv.MFCC2,
		"mfcc_3":                    fv.MFCC3,
		"mfcc_4":                    fv.MFCC4,
		"mfcc_5":                    fv.MFCC5,
	}
	for name, v := range zero {
		if v != 0 {
			t.Errorf("%s = %v, want 0 for silence", name, v)
		}
	}
	if fv.Duration != 1.0 {
		t.Errorf("duration = %v, want 1.0", fv.Duration)
	}
}

func TestExtractSubBassSine(t *testing.T) {
	fv := extract(t, mustWaveform(t, sine(40, 0.5, 22050, 44100), 22050))

	if fv.SubBassEnergy <= 10*fv.BassEnergy {
		t.Errorf("sub bass %v should dominate bass %v", fv.SubBassEnergy, fv.BassEnergy)
	}
	if math.Abs(fv.SpectralCentroid-40) > 5 {
		t.Errorf("centroid = %.2f Hz, want ~40", fv.SpectralCentroid)
	}
	if fv.BassToTotalRatio < 0 || fv.BassToTotalRatio > 1 {
		t.Errorf("bass to total ratio = %v, want in [0, 1]", fv.BassToTotalRatio)
	}
}

func TestExtractGainScaling(t *testing.T) {
	base := clickTrack(100, 3, 22050)
	tone := sine(220, 0.1, 22050, len(base))
	quiet := make([]float64, len(base))
	loud := make([]float64, len(base))
	for i := range base {
		quiet[i] = 0.4*base[i] + tone[i]
		loud[i] = 2 * quiet[i]
	}

	a := extract(t, mustWaveform(t, quiet, 22050))
	b := extract(t, mustWaveform(t, loud, 22050))

	near := func(x, y, rel float64) bool {
		return math.Abs(x-y) <= rel*math.Max(math.Abs(x), math.Abs(y))+1e-12
	}

	invariant := []struct {
		name string
		a, b float64
	}{
		{"tempo", a.Tempo, b.Tempo},
		{"beat_consistency", a.BeatConsistency, b.BeatConsistency},
		{"rhythm_density", a.RhythmDensity, b.RhythmDensity},
		{"spectral_centroid", a.SpectralCentroid, b.SpectralCentroid},
		{"bass_to_total_ratio", a.BassToTotalRatio, b.BassToTotalRatio},
		{"kick_to_snare_ratio", a.KickToSnareRatio, b.KickToSnareRatio},
		{"percussion_harmonic_ratio", a.PercussionHarmonicRatio, b.PercussionHarmonicRatio},
	}
	for _, tt := range invariant {
		if !near(tt.a, tt.b, 1e-6) {
			t.Errorf("%s changed with gain: %v vs %v", tt.name, tt.a, tt.b)
		}
	}

	linear := []struct {
		name string
		a, b float64
	}{
		{"energy_mean", a.EnergyMean, b.EnergyMean},
		{"bass_energy", a.BassEnergy, b.BassEnergy},
		{"sub_bass_energy", a.SubBassEnergy, b.SubBassEnergy},
		{"kick_energy", a.KickEnergy, b.KickEnergy},
		{"snare_energy", a.SnareEnergy, b.SnareEnergy},
		{"percussive_energy", a.PercussiveEnergy, b.PercussiveEnergy},
		{"harmonic_energy", a.HarmonicEnergy, b.HarmonicEnergy},
	}
	for _, tt := range linear {
		if !near(2*tt.a, tt.b, 1e-6) {
			t.Errorf("%s should double with gain: %v vs %v", tt.name, tt.a, tt.b)
		}
	}
}

func TestExtractDeterministic(t *testing.T) {
	signal := clickTrack(90, 2, 22050)
	for i, v := range sine(330, 0.2, 22050, len(signal)) {
		signal[i] += v
	}
	w := mustWaveform(t, signal, 22050)

	parallel := DefaultConfig()
	sequential := DefaultConfig()
	sequential.Parallel = false

	a, err := NewExtractor(parallel).Extract(context.Background(), w)
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewExtractor(sequential).Extract(context.Background(), w)
	if err != nil {
		t.Fatal(err)
	}
	c, err := NewExtractor(parallel).Extract(context.Background(), w)
	if err != nil {
		t.Fatal(err)
	}

	if *a != *b || *a != *c {
		t.Errorf("extraction is not deterministic:\n%+v\n%+v\n%+v", a, b, c)
	}
}

func TestExtractStereoWidth(t *testing.T) {
	left := make([]float64, 22050)
	right := make([]float64, 22050)
	for i := range left {
		left[i] = 0.25
		right[i] = -0.25
	}
	w, err := transcode.NewStereoWaveform(left, right, 22050)
	if err != nil {
		t.Fatal(err)
	}

	if fv := extract(t, w); math.Abs(fv.StereoWidth-0.5) > 1e-12 {
		t.Errorf("stereo width = %v, want 0.5", fv.StereoWidth)
	}
	if fv := extract(t, mustWaveform(t, left, 22050)); fv.StereoWidth != 0 {
		t.Errorf("mono stereo width = %v, want 0", fv.StereoWidth)
	}
}

func TestExtractInvalidInput(t *testing.T) {
	ex := NewExtractor(DefaultConfig())

	if _, err := ex.Extract(context.Background(), nil); err == nil {
		t.Error("expected error for nil waveform")
	}
	if _, err := ex.Extract(context.Background(), &transcode.Waveform{SampleRate: 22050}); !transcode.IsEmptyAudio(err) {
		t.Errorf("err = %v, want EmptyAudioError", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := ex.Extract(ctx, mustWaveform(t, make([]float64, 100), 22050)); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestRunStagesCancelled(t *testing.T) {
	for _, parallel := range []bool{true, false} {
		cfg := DefaultConfig()
		cfg.Parallel = parallel
		ex := NewExtractor(cfg)

		var ran atomic.Int32
		stages := make([]stage, 6)
		for i := range stages {
			stages[i] = stage{name: "counting", run: func(*FeatureVector) error {
				ran.Add(1)
				return nil
			}}
		}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := ex.runStages(ctx, stages, &FeatureVector{})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("parallel=%v: err = %v, want context.Canceled", parallel, err)
		}
		if n := ran.Load(); n != 0 {
			t.Errorf("parallel=%v: %d stages ran after cancellation", parallel, n)
		}
	}
}

func TestFeatureVectorKeys(t *testing.T) {
	fv := extract(t, mustWaveform(t, clickTrack(120, 1, 22050), 22050))

	data, err := json.Marshal(fv)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}

	keys := Keys()
	if len(keys) != 32 || len(decoded) != len(keys) || len(fv.Map()) != len(keys) {
		t.Fatalf("keys = %d, json = %d, map = %d; want 32", len(keys), len(decoded), len(fv.Map()))
	}
	for _, k := range keys {
		if _, ok := decoded[k]; !ok {
			t.Errorf("json is missing %q", k)
		}
	}

	restored, err := FromMap(fv.Map())
	if err != nil {
		t.Fatalf("FromMap: %v", err)
	}
	if *restored != *fv {
		t.Error("FromMap(Map()) does not reproduce the vector")
	}
	if _, err := FromMap(map[string]float64{"loudness": 1}); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestValidateReportsNonFinite(t *testing.T) {
	fv := &FeatureVector{Tempo: math.NaN(), Duration: math.Inf(1)}
	if err := fv.Validate(); err == nil {
		t.Fatal("expected validation error")
	}
	fv.sanitize()
	if err := fv.Validate(); err != nil {
		t.Errorf("sanitized vector still invalid: %v", err)
	}
}

func writeWAV(t *testing.T, samples []float64, sampleRate int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "beat.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	data := make([]int, len(samples))
	for i, v := range samples {
		data[i] = int(math.Round(v * 32767))
	}
	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	if err := enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestAnalyzerFileAndBytes(t *testing.T) {
	path := writeWAV(t, clickTrack(120, 2, 44100), 44100)
	analyzer := NewAnalyzer(transcode.DefaultLoaderConfig(), DefaultConfig())

	fromFile, err := analyzer.AnalyzeFile(context.Background(), path)
	if err != nil {
		t.Fatalf("AnalyzeFile: %v", err)
	}
	if fromFile.Waveform.SampleRate != 22050 {
		t.Errorf("sample rate = %d, want 22050", fromFile.Waveform.SampleRate)
	}
	if fromFile.Key == "" {
		t.Error("key is empty")
	}
	if math.Abs(fromFile.Features.Tempo-120) > 2 {
		t.Errorf("tempo = %.2f, want 120±2", fromFile.Features.Tempo)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	fromBytes, err := analyzer.AnalyzeBytes(context.Background(), data)
	if err != nil {
		t.Fatalf("AnalyzeBytes: %v", err)
	}
	if *fromBytes.Features != *fromFile.Features {
		t.Error("identical bytes produced different features")
	}
}

func TestAnalyzerRejectsGarbage(t *testing.T) {
	loaderCfg := transcode.DefaultLoaderConfig()
	loaderCfg.FFmpegFallback = false

	_, err := NewAnalyzer(loaderCfg, DefaultConfig()).AnalyzeBytes(context.Background(), []byte("not audio at all"))
	if !transcode.IsDecodeError(err) {
		t.Errorf("err = %v, want DecodeError", err)
	}
}
