package transcode

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// writeWAV encodes interleaved 16-bit samples to a file and returns its path
func writeWAV(t *testing.T, interleaved []float64, sampleRate, numChans int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fixture.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create fixture: %v", err)
	}
	defer f.Close()

	data := make([]int, len(interleaved))
	for i, v := range interleaved {
		data[i] = int(math.Round(v * 32767))
	}

	enc := wav.NewEncoder(f, sampleRate, 16, numChans, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: numChans, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	return path
}

func sine(freq float64, sampleRate, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

func TestLoadMonoWAV(t *testing.T) {
	path := writeWAV(t, sine(440, 22050, 22050), 22050, 1)

	w, err := NewLoader(DefaultLoaderConfig()).LoadFile(context.Background(), path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if w.SampleRate != 22050 || w.Channels != 1 || w.IsStereo() {
		t.Errorf("waveform = rate %d channels %d", w.SampleRate, w.Channels)
	}
	if len(w.Samples) != 22050 {
		t.Errorf("samples = %d, want 22050", len(w.Samples))
	}
	if math.Abs(w.Duration()-1.0) > 1e-9 {
		t.Errorf("duration = %v, want 1s", w.Duration())
	}

	peak := 0.0
	for _, s := range w.Samples {
		peak = math.Max(peak, math.Abs(s))
	}
	if math.Abs(peak-0.5) > 0.01 {
		t.Errorf("peak = %v, want ~0.5", peak)
	}
}

func TestLoadStereoWAVResamples(t *testing.T) {
	frames := 44100
	interleaved := make([]float64, 2*frames)
	for i := range frames {
		interleaved[2*i] = 0.5
		interleaved[2*i+1] = -0.5
	}
	path := writeWAV(t, interleaved, 44100, 2)

	w, err := NewLoader(DefaultLoaderConfig()).LoadFile(context.Background(), path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if w.SampleRate != 22050 {
		t.Errorf("sample rate = %d, want 22050", w.SampleRate)
	}
	if len(w.Samples) != 22050 {
		t.Errorf("samples = %d, want 22050", len(w.Samples))
	}
	if !w.IsStereo() || len(w.Left) != len(w.Samples) || len(w.Right) != len(w.Samples) {
		t.Fatalf("stereo view missing: channels=%d left=%d right=%d", w.Channels, len(w.Left), len(w.Right))
	}
	for i, s := range w.Samples {
		if math.Abs(s) > 1e-4 {
			t.Fatalf("mono sample %d = %v, want 0 for opposite channels", i, s)
		}
	}
	if math.Abs(w.Left[100]-0.5) > 1e-3 || math.Abs(w.Right[100]+0.5) > 1e-3 {
		t.Errorf("left/right = %v/%v", w.Left[100], w.Right[100])
	}
}

func TestLoadStereoDownmixWithoutPreserve(t *testing.T) {
	interleaved := []float64{0.5, 0.1, 0.5, 0.1, 0.5, 0.1, 0.5, 0.1}
	path := writeWAV(t, interleaved, 22050, 2)

	cfg := DefaultLoaderConfig()
	cfg.PreserveStereo = false
	w, err := NewLoader(cfg).LoadFile(context.Background(), path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if w.IsStereo() || w.Left != nil {
		t.Error("stereo view kept with PreserveStereo disabled")
	}
	if len(w.Samples) != 4 || math.Abs(w.Samples[0]-0.3) > 1e-3 {
		t.Errorf("samples = %v, want four values of ~0.3", w.Samples)
	}
}

func TestLoadInvalidBytes(t *testing.T) {
	cfg := DefaultLoaderConfig()
	cfg.FFmpegFallback = false

	_, err := NewLoader(cfg).Load(context.Background(), []byte("definitely not audio"))
	if !IsDecodeError(err) {
		t.Fatalf("err = %v, want DecodeError", err)
	}
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestLoadTruncatedWAVHeader(t *testing.T) {
	cfg := DefaultLoaderConfig()
	cfg.FFmpegFallback = false

	_, err := NewLoader(cfg).Load(context.Background(), []byte("RIFF\x00\x00\x00\x00WAVE"))
	if !IsDecodeError(err) {
		t.Fatalf("err = %v, want DecodeError", err)
	}
}

// riffWAVE assembles a RIFF/WAVE file from raw chunks, each written with the
// size it declares rather than its real length
func riffWAVE(chunks ...riffChunk) []byte {
	var body bytes.Buffer
	body.WriteString("WAVE")
	for _, c := range chunks {
		body.WriteString(c.id)
		binary.Write(&body, binary.LittleEndian, c.size)
		body.Write(c.payload)
	}

	var out bytes.Buffer
	out.WriteString("RIFF")
	binary.Write(&out, binary.LittleEndian, uint32(body.Len()))
	out.Write(body.Bytes())
	return out.Bytes()
}

type riffChunk struct {
	id      string
	size    uint32
	payload []byte
}

func pcmFmt(channels, sampleRate, bitDepth int) []byte {
	var b bytes.Buffer
	blockAlign := channels * ((bitDepth + 7) / 8)
	binary.Write(&b, binary.LittleEndian, uint16(1))
	binary.Write(&b, binary.LittleEndian, uint16(channels))
	binary.Write(&b, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&b, binary.LittleEndian, uint32(sampleRate*blockAlign))
	binary.Write(&b, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&b, binary.LittleEndian, uint16(bitDepth))
	return b.Bytes()
}

func TestLoadMalformedWAVChunks(t *testing.T) {
	cfg := DefaultLoaderConfig()
	cfg.FFmpegFallback = false
	loader := NewLoader(cfg)

	samples := make([]byte, 64)
	cases := map[string][]byte{
		"fmt size past end of input": riffWAVE(
			riffChunk{"fmt ", 0xFFFFFFF0, pcmFmt(1, 22050, 16)},
			riffChunk{"data", 64, samples},
		),
		"fmt size not a WAVE size": riffWAVE(
			riffChunk{"fmt ", 20, append(pcmFmt(1, 22050, 16), 0, 0, 0, 0)},
			riffChunk{"data", 64, samples},
		),
		"data size past end of input": riffWAVE(
			riffChunk{"fmt ", 16, pcmFmt(1, 22050, 16)},
			riffChunk{"data", 1 << 30, samples},
		),
		"no fmt chunk": riffWAVE(
			riffChunk{"data", 64, samples},
		),
		"12-bit samples": riffWAVE(
			riffChunk{"fmt ", 16, pcmFmt(1, 22050, 12)},
			riffChunk{"data", 64, samples},
		),
	}

	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := loader.Load(context.Background(), data)
			if !IsDecodeError(err) {
				t.Fatalf("err = %v, want DecodeError", err)
			}
		})
	}

	// the same layout with honest sizes decodes
	valid := riffWAVE(
		riffChunk{"fmt ", 16, pcmFmt(1, 22050, 16)},
		riffChunk{"data", 64, samples},
	)
	w, err := loader.Load(context.Background(), valid)
	if err != nil {
		t.Fatalf("valid chunks: %v", err)
	}
	if len(w.Samples) != 32 {
		t.Errorf("samples = %d, want 32", len(w.Samples))
	}
}

func TestLoadForgedFLACSampleCount(t *testing.T) {
	cfg := DefaultLoaderConfig()
	cfg.FFmpegFallback = false

	// STREAMINFO claiming 2^36-1 samples of 16-bit mono with no frames behind it
	streamInfo := make([]byte, 34)
	binary.BigEndian.PutUint16(streamInfo[0:2], 4096)
	binary.BigEndian.PutUint16(streamInfo[2:4], 4096)
	packed := uint64(44100)<<44 | uint64(0)<<41 | uint64(15)<<36 | (1<<36 - 1)
	binary.BigEndian.PutUint64(streamInfo[10:18], packed)

	data := append([]byte("fLaC"), 0x80, 0x00, 0x00, 34)
	data = append(data, streamInfo...)
	if len(data) != 42 {
		t.Fatalf("fixture is %d bytes, want 42", len(data))
	}

	_, err := NewLoader(cfg).Load(context.Background(), data)
	if !IsDecodeError(err) {
		t.Fatalf("err = %v, want DecodeError", err)
	}
}

func TestRunNativeTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	_, err := runNative(ctx, "wav", func() (*pcm, error) {
		<-release
		return &pcm{}, nil
	})
	if !IsDecodeError(err) {
		t.Fatalf("err = %v, want DecodeError", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("runNative returned after %v, want the deadline", elapsed)
	}
}

func TestLoadEmptyAudio(t *testing.T) {
	loader := NewLoader(DefaultLoaderConfig())

	if _, err := loader.Load(context.Background(), nil); !IsEmptyAudio(err) {
		t.Errorf("nil input: err = %v, want EmptyAudioError", err)
	}

	path := writeWAV(t, nil, 22050, 1)
	if _, err := loader.LoadFile(context.Background(), path); !IsEmptyAudio(err) {
		t.Errorf("empty data chunk: err = %v, want EmptyAudioError", err)
	}
}

func TestLoadMaxDuration(t *testing.T) {
	path := writeWAV(t, sine(440, 22050, 44100), 22050, 1)

	cfg := DefaultLoaderConfig()
	cfg.MaxDuration = 500 * time.Millisecond
	w, err := NewLoader(cfg).LoadFile(context.Background(), path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(w.Samples) != 11025 {
		t.Errorf("samples = %d, want 11025", len(w.Samples))
	}
}

func TestLoadCancelledContext(t *testing.T) {
	path := writeWAV(t, sine(440, 22050, 22050), 22050, 1)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// the decode may win the race, but an error must be a DecodeError
	if _, err := NewLoader(DefaultLoaderConfig()).Load(ctx, data); err != nil && !IsDecodeError(err) {
		t.Errorf("err = %v, want nil or DecodeError", err)
	}
}

func TestNewStereoWaveform(t *testing.T) {
	w, err := NewStereoWaveform([]float64{2, 0.5}, []float64{0, -0.5}, 100)
	if err != nil {
		t.Fatalf("NewStereoWaveform: %v", err)
	}
	if w.Left[0] != 1 {
		t.Errorf("left not clamped: %v", w.Left[0])
	}
	if w.Samples[0] != 0.5 || w.Samples[1] != 0 {
		t.Errorf("mono = %v, want [0.5 0]", w.Samples)
	}

	if _, err := NewStereoWaveform([]float64{1}, nil, 100); err == nil {
		t.Error("expected error for mismatched channels")
	}
	if _, err := NewWaveform([]float64{1}, 0); err == nil {
		t.Error("expected error for zero sample rate")
	}
}

func TestParseProbeOutput(t *testing.T) {
	info, err := parseProbeOutput([]byte(`{"streams":[{"codec_type":"audio","codec_name":"mp3","sample_rate":"44100","channels":2,"duration":"3.5"}]}`))
	if err != nil {
		t.Fatalf("parseProbeOutput: %v", err)
	}
	if info.SampleRate != 44100 || info.Channels != 2 || info.Codec != "mp3" || info.Duration != 3.5 {
		t.Errorf("info = %+v", info)
	}

	if _, err := parseProbeOutput([]byte(`{"streams":[]}`)); err == nil {
		t.Error("expected error for no streams")
	}
}

func TestDeinterleave(t *testing.T) {
	channels := deinterleave([]float64{1, 2, 3, 4, 5}, 2)
	if len(channels) != 2 || len(channels[0]) != 2 {
		t.Fatalf("channels = %v", channels)
	}
	if channels[0][1] != 3 || channels[1][1] != 4 {
		t.Errorf("channels = %v", channels)
	}
}
