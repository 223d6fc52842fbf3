package transcode

import (
	"errors"
	"fmt"
)

// DecodeError reports input that could not be turned into audio
type DecodeError struct {
	Format string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Format == "" {
		return fmt.Sprintf("decode failed: %v", e.Err)
	}
	return fmt.Sprintf("decode %s failed: %v", e.Format, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// EmptyAudioError reports a container that decoded to zero samples
type EmptyAudioError struct {
	Format string
}

func (e *EmptyAudioError) Error() string {
	if e.Format == "" {
		return "audio contains no samples"
	}
	return fmt.Sprintf("%s audio contains no samples", e.Format)
}

// IsDecodeError reports whether err wraps a *DecodeError
func IsDecodeError(err error) bool {
	var target *DecodeError
	return errors.As(err, &target)
}

// IsEmptyAudio reports whether err wraps an *EmptyAudioError
func IsEmptyAudio(err error) bool {
	var target *EmptyAudioError
	return errors.As(err, &target)
}
