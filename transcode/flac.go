package transcode

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/mewkiz/flac"
)

// decodeFLAC decodes every frame of a FLAC stream into per-channel samples
func decodeFLAC(data []byte) (*pcm, error) {
	stream, err := flac.New(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Format: "flac", Err: err}
	}
	defer stream.Close()

	info := stream.Info
	if info == nil || info.NChannels == 0 || info.SampleRate == 0 {
		return nil, &DecodeError{Format: "flac", Err: fmt.Errorf("missing stream info")}
	}

	if info.BitsPerSample < 4 || info.BitsPerSample > 32 {
		return nil, &DecodeError{Format: "flac", Err: fmt.Errorf("unsupported bit depth %d", info.BitsPerSample)}
	}

	numChans := int(info.NChannels)
	scale := float64(int64(1) << (info.BitsPerSample - 1))
	out := &pcm{
		channels:   make([][]float64, numChans),
		sampleRate: int(info.SampleRate),
		format:     "flac",
	}
	// NSamples comes from the header, so the capacity hint is bounded by
	// the input size; frames past it grow the slices as they decode.
	if hint := min(info.NSamples, uint64(len(data))); hint > 0 {
		for ch := range out.channels {
			out.channels[ch] = make([]float64, 0, hint)
		}
	}

	for {
		frame, err := stream.ParseNext()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &DecodeError{Format: "flac", Err: err}
		}
		if len(frame.Subframes) < numChans {
			return nil, &DecodeError{Format: "flac", Err: fmt.Errorf("frame has %d subframes, want %d", len(frame.Subframes), numChans)}
		}

		for ch := range numChans {
			for _, s := range frame.Subframes[ch].Samples {
				out.channels[ch] = append(out.channels[ch], float64(s)/scale)
			}
		}
	}

	if info.NSamples > 0 && out.frames() == 0 {
		return nil, &DecodeError{Format: "flac", Err: fmt.Errorf("stream info declares %d samples but no frames decoded", info.NSamples)}
	}
	return out, nil
}
