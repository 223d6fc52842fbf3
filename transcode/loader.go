package transcode

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/RyanBlaney/beatwizard/logging"
)

// ErrUnsupportedFormat is wrapped in a DecodeError when the container is not
// handled natively and the ffmpeg fallback is disabled
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// LoaderConfig holds loader configuration. In JSON the durations are Go
// duration strings such as "30s"; bare numbers are read as nanoseconds.
type LoaderConfig struct {
	TargetSampleRate int           `json:"target_sample_rate"`
	PreserveStereo   bool          `json:"preserve_stereo"`
	FFmpegFallback   bool          `json:"ffmpeg_fallback"`
	FFmpegPath       string        `json:"ffmpeg_path"`
	FFprobePath      string        `json:"ffprobe_path"`
	DecodeTimeout    time.Duration `json:"decode_timeout"`
	MaxDuration      time.Duration `json:"max_duration"` // 0 means no limit
}

// DefaultLoaderConfig returns the default loader configuration
func DefaultLoaderConfig() LoaderConfig {
	return LoaderConfig{
		TargetSampleRate: 22050,
		PreserveStereo:   true,
		FFmpegFallback:   true,
		FFmpegPath:       "ffmpeg",
		FFprobePath:      "ffprobe",
		DecodeTimeout:    30 * time.Second,
		MaxDuration:      0,
	}
}

// MarshalJSON writes the durations as strings
func (c LoaderConfig) MarshalJSON() ([]byte, error) {
	type plain LoaderConfig
	return json.Marshal(struct {
		plain
		DecodeTimeout string `json:"decode_timeout"`
		MaxDuration   string `json:"max_duration"`
	}{plain(c), c.DecodeTimeout.String(), c.MaxDuration.String()})
}

// UnmarshalJSON reads the durations as strings or nanosecond counts.
// Fields missing from the input keep their current values.
func (c *LoaderConfig) UnmarshalJSON(data []byte) error {
	type plain LoaderConfig
	aux := struct {
		*plain
		DecodeTimeout json.RawMessage `json:"decode_timeout"`
		MaxDuration   json.RawMessage `json:"max_duration"`
	}{plain: (*plain)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	if c.DecodeTimeout, err = UnmarshalDuration(aux.DecodeTimeout, c.DecodeTimeout); err != nil {
		return fmt.Errorf("decode_timeout: %w", err)
	}
	if c.MaxDuration, err = UnmarshalDuration(aux.MaxDuration, c.MaxDuration); err != nil {
		return fmt.Errorf("max_duration: %w", err)
	}
	return nil
}

// UnmarshalDuration parses a JSON duration: a string accepted by
// time.ParseDuration or a number of nanoseconds. Absent or null input
// returns fallback.
func UnmarshalDuration(raw json.RawMessage, fallback time.Duration) (time.Duration, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return fallback, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return time.ParseDuration(s)
	}

	var n int64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("invalid duration %s", raw)
	}
	return time.Duration(n), nil
}

// Loader turns raw audio bytes into a Waveform at the target sample rate.
// WAV and FLAC are decoded natively; other containers go through ffmpeg.
type Loader struct {
	config LoaderConfig
	ffmpeg *ffmpegDecoder
}

// NewLoader creates a loader. A non-positive target rate falls back to the
// default.
func NewLoader(config LoaderConfig) *Loader {
	if config.TargetSampleRate <= 0 {
		config.TargetSampleRate = DefaultLoaderConfig().TargetSampleRate
	}
	return &Loader{
		config: config,
		ffmpeg: newFFmpegDecoder(config.FFmpegPath, config.FFprobePath),
	}
}

// Config returns the loader configuration
func (l *Loader) Config() LoaderConfig {
	return l.config
}

// LoadFile reads and decodes an audio file
func (l *Loader) LoadFile(ctx context.Context, path string) (*Waveform, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return l.Load(ctx, data)
}

// Load decodes raw audio bytes, resamples to the target rate and mixes the
// channels down. The decode step is bounded by DecodeTimeout.
func (l *Loader) Load(ctx context.Context, data []byte) (*Waveform, error) {
	logger := logging.WithContext(ctx).WithFields(logging.Fields{
		"component": "loader",
		"function":  "Load",
		"data_size": len(data),
	})

	if len(data) == 0 {
		return nil, &EmptyAudioError{}
	}

	decoded, err := l.decode(ctx, data)
	if err != nil {
		logger.Debug("Decode failed", logging.Fields{"error": err.Error()})
		return nil, err
	}
	if decoded.frames() == 0 {
		return nil, &EmptyAudioError{Format: decoded.format}
	}
	if decoded.sampleRate <= 0 {
		return nil, &DecodeError{Format: decoded.format, Err: fmt.Errorf("invalid sample rate %d", decoded.sampleRate)}
	}

	l.truncate(decoded)
	waveform, err := Resample(l.mix(decoded), l.config.TargetSampleRate)
	if err != nil {
		return nil, err
	}

	logger.Debug("Audio loaded", logging.Fields{
		"format":             decoded.format,
		"source_sample_rate": decoded.sampleRate,
		"source_channels":    len(decoded.channels),
		"sample_rate":        waveform.SampleRate,
		"samples":            len(waveform.Samples),
		"stereo":             waveform.IsStereo(),
	})

	return waveform, nil
}

func (l *Loader) decode(ctx context.Context, data []byte) (*pcm, error) {
	if l.config.DecodeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.config.DecodeTimeout)
		defer cancel()
	}

	switch sniffFormat(data) {
	case "wav":
		return runNative(ctx, "wav", func() (*pcm, error) { return decodeWAV(data) })
	case "flac":
		return runNative(ctx, "flac", func() (*pcm, error) { return decodeFLAC(data) })
	}

	if !l.config.FFmpegFallback {
		return nil, &DecodeError{Err: ErrUnsupportedFormat}
	}
	return l.ffmpeg.decode(ctx, data)
}

// runNative races an in-process decoder against the context. A decoder that
// outlives the deadline finishes in the background and its result is
// discarded.
func runNative(ctx context.Context, format string, decode func() (*pcm, error)) (*pcm, error) {
	type result struct {
		pcm *pcm
		err error
	}

	done := make(chan result, 1)
	go func() {
		p, err := decode()
		done <- result{pcm: p, err: err}
	}()

	select {
	case r := <-done:
		return r.pcm, r.err
	case <-ctx.Done():
		return nil, &DecodeError{Format: format, Err: ctx.Err()}
	}
}

func sniffFormat(data []byte) string {
	switch {
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return "wav"
	case len(data) >= 4 && bytes.Equal(data[0:4], []byte("fLaC")):
		return "flac"
	default:
		return ""
	}
}

// truncate drops frames beyond MaxDuration
func (l *Loader) truncate(p *pcm) {
	if l.config.MaxDuration <= 0 {
		return
	}
	maxFrames := int(l.config.MaxDuration.Seconds() * float64(p.sampleRate))
	if maxFrames <= 0 || maxFrames >= p.frames() {
		return
	}
	for ch := range p.channels {
		p.channels[ch] = p.channels[ch][:maxFrames]
	}
}

// mix averages all channels into the mono view and keeps the first two
// channels as the stereo view when configured
func (l *Loader) mix(p *pcm) *Waveform {
	frames := p.frames()
	mono := make([]float64, frames)
	for _, channel := range p.channels {
		for i := range frames {
			mono[i] += channel[i]
		}
	}
	for i := range mono {
		mono[i] /= float64(len(p.channels))
	}

	w := &Waveform{
		Samples:    clampAll(mono),
		SampleRate: p.sampleRate,
		Channels:   1,
	}
	if l.config.PreserveStereo && len(p.channels) >= 2 {
		w.Left = clampAll(p.channels[0][:frames])
		w.Right = clampAll(p.channels[1][:frames])
		w.Channels = 2
	}
	return w
}
