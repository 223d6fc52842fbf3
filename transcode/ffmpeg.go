package transcode

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/RyanBlaney/beatwizard/logging"
)

// ffmpegDecoder decodes any container ffmpeg understands by piping the bytes
// through ffprobe for the channel layout and ffmpeg for raw f64le PCM
type ffmpegDecoder struct {
	ffmpegPath  string
	ffprobePath string
}

// probeInfo holds the audio properties reported by ffprobe
type probeInfo struct {
	SampleRate int
	Channels   int
	Codec      string
	Duration   float64
}

func newFFmpegDecoder(ffmpegPath, ffprobePath string) *ffmpegDecoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &ffmpegDecoder{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}
}

func (d *ffmpegDecoder) decode(ctx context.Context, data []byte) (*pcm, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "audio_decoder",
		"function":  "ffmpegDecode",
		"data_size": len(data),
	})

	info, err := d.probe(ctx, data)
	if err != nil {
		return nil, &DecodeError{Format: "ffmpeg", Err: err}
	}

	logger.Debug("Audio metadata detected", logging.Fields{
		"input_sample_rate": info.SampleRate,
		"input_channels":    info.Channels,
		"input_codec":       info.Codec,
		"input_duration":    info.Duration,
	})

	args := []string{
		"-v", "error",
		"-i", "pipe:0",
		"-vn",
		"-f", "f64le",
		"-ac", strconv.Itoa(info.Channels),
		"-ar", strconv.Itoa(info.SampleRate),
		"pipe:1",
	}

	cmd := exec.CommandContext(ctx, d.ffmpegPath, args...)
	cmd.Stdin = bytes.NewReader(data)

	logger.Debug("Running ffmpeg command", logging.Fields{
		"args": strings.Join(args, " "),
	})

	start := time.Now()
	output, err := cmd.Output()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &DecodeError{Format: "ffmpeg", Err: ctxErr}
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			logger.Error(err, "Ffmpeg decode failed", logging.Fields{
				"stderr": string(exitErr.Stderr),
			})
			return nil, &DecodeError{Format: "ffmpeg", Err: fmt.Errorf("%w, stderr: %s", err, exitErr.Stderr)}
		}
		return nil, &DecodeError{Format: "ffmpeg", Err: err}
	}

	logger.Debug("Ffmpeg decode completed", logging.Fields{
		"output_bytes": len(output),
		"decode_time":  time.Since(start).Seconds(),
	})

	return &pcm{
		channels:   deinterleave(bytesToFloat64(output), info.Channels),
		sampleRate: info.SampleRate,
		format:     info.Codec,
	}, nil
}

// probe runs ffprobe on the input to find its sample rate and channel count
func (d *ffmpegDecoder) probe(ctx context.Context, data []byte) (*probeInfo, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-select_streams", "a:0",
		"pipe:0",
	}

	cmd := exec.CommandContext(ctx, d.ffprobePath, args...)
	cmd.Stdin = bytes.NewReader(data)

	output, err := cmd.Output()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("ffprobe failed: %w, stderr: %s", err, exitErr.Stderr)
		}
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	return parseProbeOutput(output)
}

func parseProbeOutput(jsonData []byte) (*probeInfo, error) {
	var probe struct {
		Streams []struct {
			CodecType  string `json:"codec_type"`
			CodecName  string `json:"codec_name"`
			SampleRate string `json:"sample_rate"`
			Channels   int    `json:"channels"`
			Duration   string `json:"duration"`
		} `json:"streams"`
	}

	if err := json.Unmarshal(jsonData, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	if len(probe.Streams) == 0 {
		return nil, fmt.Errorf("no audio streams found")
	}

	stream := probe.Streams[0]
	if stream.CodecType != "audio" {
		return nil, fmt.Errorf("stream is not audio type: %s", stream.CodecType)
	}

	sampleRate, err := strconv.Atoi(stream.SampleRate)
	if err != nil || sampleRate <= 0 {
		sampleRate = 44100
	}
	duration, err := strconv.ParseFloat(stream.Duration, 64)
	if err != nil {
		duration = 0
	}
	if stream.Channels <= 0 || stream.Channels > 8 {
		return nil, fmt.Errorf("invalid channel count: %d", stream.Channels)
	}

	return &probeInfo{
		SampleRate: sampleRate,
		Channels:   stream.Channels,
		Codec:      stream.CodecName,
		Duration:   duration,
	}, nil
}

// bytesToFloat64 converts raw little-endian float64 bytes, dropping a
// trailing partial sample
func bytesToFloat64(data []byte) []float64 {
	count := len(data) / 8
	samples := make([]float64, count)
	for i := range count {
		samples[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8 : i*8+8]))
	}
	return samples
}

// deinterleave splits interleaved frames into channels, dropping a trailing
// partial frame
func deinterleave(samples []float64, numChans int) [][]float64 {
	if numChans < 1 {
		numChans = 1
	}
	frames := len(samples) / numChans
	channels := make([][]float64, numChans)
	for ch := range channels {
		channels[ch] = make([]float64, frames)
		for i := range frames {
			channels[ch][i] = samples[i*numChans+ch]
		}
	}
	return channels
}
