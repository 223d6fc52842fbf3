package logging

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{"", InfoLevel, false},
		{"warning", WarnLevel, false},
		{" error ", ErrorLevel, false},
		{"fatal", FatalLevel, false},
		{"verbose", InfoLevel, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDefaultLoggerFieldsAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewDefaultLoggerWithWriter(&buf)

	logger.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug message written at info level: %q", buf.String())
	}

	logger.WithFields(Fields{"component": "decoder"}).Info("decoded", Fields{"samples": 42})
	out := buf.String()
	for _, want := range []string{"msg=decoded", "component=decoder", "samples=42", "level=info"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}

	buf.Reset()
	logger.SetLevel(ErrorLevel)
	logger.Warn("dropped")
	logger.Error(errors.New("boom"), "failed")
	out = buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("warn message written at error level: %q", out)
	}
	if !strings.Contains(out, "error=boom") {
		t.Errorf("error field missing from %q", out)
	}
}

func TestContextWithFields(t *testing.T) {
	ctx := ContextWithFields(context.Background(), Fields{"request_id": "abc", "stage": "load"})
	ctx = ContextWithFields(ctx, Fields{"stage": "extract"})

	fields := FieldsFromContext(ctx)
	if fields["request_id"] != "abc" || fields["stage"] != "extract" {
		t.Fatalf("unexpected fields %v", fields)
	}

	var buf bytes.Buffer
	NewDefaultLoggerWithWriter(&buf).WithContext(ctx).Info("tick")
	if !strings.Contains(buf.String(), "request_id=abc") {
		t.Errorf("context fields missing from %q", buf.String())
	}
}

func TestSetGlobalLoggerNil(t *testing.T) {
	prev := GetGlobalLogger()
	t.Cleanup(func() { SetGlobalLogger(prev) })

	SetGlobalLogger(nil)
	if _, ok := GetGlobalLogger().(*NoOpLogger); !ok {
		t.Fatalf("expected NoOpLogger, got %T", GetGlobalLogger())
	}
	Info("nothing happens")
}
