package transcode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-audio/wav"
)

const wavFormatIEEEFloat = 3

// pcm is decoded audio before resampling and channel mixing
type pcm struct {
	channels   [][]float64
	sampleRate int
	format     string
}

func (p *pcm) frames() int {
	if len(p.channels) == 0 {
		return 0
	}
	return len(p.channels[0])
}

// decodeWAV decodes integer PCM (8/16/24/32 bit) and 32-bit IEEE float WAV
func decodeWAV(data []byte) (*pcm, error) {
	if err := validateRIFF(data); err != nil {
		return nil, &DecodeError{Format: "wav", Err: err}
	}

	dec := wav.NewDecoder(bytes.NewReader(data))
	dec.ReadInfo()
	if err := dec.Err(); err != nil {
		return nil, &DecodeError{Format: "wav", Err: err}
	}
	if dec.NumChans < 1 || dec.SampleRate == 0 {
		return nil, &DecodeError{Format: "wav", Err: fmt.Errorf("missing fmt chunk")}
	}

	isFloat := dec.WavAudioFormat == wavFormatIEEEFloat
	if isFloat && dec.BitDepth != 32 {
		return nil, &DecodeError{Format: "wav", Err: fmt.Errorf("unsupported float bit depth %d", dec.BitDepth)}
	}
	switch dec.BitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, &DecodeError{Format: "wav", Err: fmt.Errorf("unsupported bit depth %d", dec.BitDepth)}
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, &DecodeError{Format: "wav", Err: err}
	}

	numChans := int(dec.NumChans)
	bitDepth := int(dec.BitDepth)
	frames := len(buf.Data) / numChans
	out := &pcm{
		channels:   make([][]float64, numChans),
		sampleRate: int(dec.SampleRate),
		format:     "wav",
	}
	for ch := range out.channels {
		out.channels[ch] = make([]float64, frames)
	}

	for i := range frames {
		for ch := range numChans {
			v := buf.Data[i*numChans+ch]
			switch {
			case isFloat:
				out.channels[ch][i] = float64(math.Float32frombits(uint32(int32(v))))
			case bitDepth == 8:
				// 8-bit WAV is unsigned
				out.channels[ch][i] = float64(v-128) / 128.0
			default:
				out.channels[ch][i] = float64(v) / float64(int64(1)<<(bitDepth-1))
			}
		}
	}

	return out, nil
}

// validateRIFF walks the chunk list of a RIFF/WAVE file before it reaches
// the decoder. Every chunk must fit inside the input and the fmt chunk must
// have one of the sizes WAVE defines.
func validateRIFF(data []byte) error {
	if len(data) < 12 || !bytes.Equal(data[0:4], []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WAVE")) {
		return fmt.Errorf("not a RIFF/WAVE file")
	}

	hasFmt := false
	for off := 12; len(data)-off >= 8; {
		id := string(data[off : off+4])
		size := uint64(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		off += 8

		if size > uint64(len(data)-off) {
			return fmt.Errorf("%q chunk size %d exceeds the %d bytes left", id, size, len(data)-off)
		}
		if id == "fmt " {
			switch size {
			case 16, 18, 40:
			default:
				return fmt.Errorf("invalid fmt chunk size %d", size)
			}
			hasFmt = true
		}

		off += int(size)
		if size%2 == 1 && off < len(data) {
			off++
		}
	}

	if !hasFmt {
		return fmt.Errorf("missing fmt chunk")
	}
	return nil
}
