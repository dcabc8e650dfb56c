package llm

import (
	"fmt"
	"strings"
	"testing"
)

type captureLogger struct {
	warns []string
}

func (l *captureLogger) Info(string, ...interface{}) {}
func (l *captureLogger) Warn(format string, v ...interface{}) {
	l.warns = append(l.warns, fmt.Sprintf(format, v...))
}
func (l *captureLogger) Error(string, ...interface{}) {}

func frame(content string) string {
	return fmt.Sprintf("data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", content)
}

func feedAll(t *testing.T, asm *frameAssembler, chunks []string) string {
	t.Helper()
	var out strings.Builder
	for _, c := range chunks {
		out.WriteString(asm.feed(c))
	}
	return out.String()
}

func TestAssemblerSingleChunk(t *testing.T) {
	stream := frame("Hello") + frame(", ") + frame("world") + "data: [DONE]\n\n"

	asm := frameAssembler{}
	got := asm.feed(stream)

	if got != "Hello, world" {
		t.Errorf("expected %q, got %q", "Hello, world", got)
	}
	if !asm.done {
		t.Error("terminal sentinel should mark the stream done")
	}
}

func TestAssemblerSplitAtEveryOffset(t *testing.T) {
	stream := frame("Hel") + frame("lo") + frame(" 世界") + frame("!") + "data: [DONE]\n\n"
	want := "Hello 世界!"

	for offset := 1; offset < len(stream); offset++ {
		asm := frameAssembler{}
		got := feedAll(t, &asm, []string{stream[:offset], stream[offset:]})
		if got != want {
			t.Errorf("split at byte %d: expected %q, got %q", offset, want, got)
		}
		if !asm.done {
			t.Errorf("split at byte %d: stream should be done", offset)
		}
	}
}

func TestAssemblerBytewiseDelivery(t *testing.T) {
	stream := frame("a") + frame("b") + frame("c") + "data: [DONE]\n\n"

	asm := frameAssembler{}
	var out strings.Builder
	for i := 0; i < len(stream); i++ {
		out.WriteString(asm.feed(stream[i : i+1]))
	}

	if out.String() != "abc" {
		t.Errorf("expected %q, got %q", "abc", out.String())
	}
}

func TestAssemblerSentinelStopsProcessing(t *testing.T) {
	chunk := frame("kept") + "data: [DONE]\n\n" + frame("dropped")

	asm := frameAssembler{}
	got := asm.feed(chunk)

	if got != "kept" {
		t.Errorf("expected %q, got %q", "kept", got)
	}
	if more := asm.feed(frame("late")); more != "" {
		t.Errorf("bytes after the sentinel should be ignored, got %q", more)
	}
}

func TestAssemblerMalformedNonFinalFrameDropped(t *testing.T) {
	log := &captureLogger{}
	chunk := frame("one") + "data: {not json}\n\n" + frame("two") + "data: [DONE]\n\n"

	asm := frameAssembler{log: log}
	got := asm.feed(chunk)

	if got != "onetwo" {
		t.Errorf("expected %q, got %q", "onetwo", got)
	}
	if len(log.warns) != 1 {
		t.Errorf("expected one dropped-frame warning, got %d", len(log.warns))
	}
}

func TestAssemblerTruncatedTailCarried(t *testing.T) {
	full := frame("trailing space ") // content ends in a significant space
	cut := strings.Index(full, "space") + 6 // split inside the string literal

	asm := frameAssembler{}
	got := asm.feed(full[:cut]) + asm.feed(full[cut:])

	if got != "trailing space " {
		t.Errorf("expected %q, got %q", "trailing space ", got)
	}
}

func TestAssemblerFinishWarnsOnDanglingTail(t *testing.T) {
	log := &captureLogger{}
	full := frame("cut off")

	asm := frameAssembler{log: log}
	asm.feed(full[:len(full)-10])
	asm.finish()

	if len(log.warns) != 1 {
		t.Fatalf("expected one dropped-tail warning, got %d", len(log.warns))
	}
	if asm.carry != "" {
		t.Error("finish should discard the carried tail")
	}

	// A cleanly terminated stream has nothing to report.
	log.warns = nil
	asm = frameAssembler{log: log}
	asm.feed(frame("ok") + "data: [DONE]\n\n")
	asm.finish()
	if len(log.warns) != 0 {
		t.Errorf("unexpected warnings after a complete stream: %v", log.warns)
	}
}

func TestAssemblerFramesWithoutChoices(t *testing.T) {
	chunk := "data: {\"choices\":[]}\n\n" + frame("x") + "data: [DONE]\n\n"

	asm := frameAssembler{}
	if got := asm.feed(chunk); got != "x" {
		t.Errorf("expected %q, got %q", "x", got)
	}
}

func TestParseAPIError(t *testing.T) {
	raw := []byte(`{"error":{"message":"rate limited"}}`)
	err := parseAPIError(429, raw)

	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.Message != "rate limited" || apiErr.StatusCode != 429 {
		t.Errorf("unexpected error fields: %+v", apiErr)
	}
	if string(apiErr.Raw) != string(raw) {
		t.Error("raw payload should be preserved")
	}
}

func TestParseAPIErrorUnexpectedBody(t *testing.T) {
	err := parseAPIError(500, []byte("<html>oops</html>"))

	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.Message != "" {
		t.Errorf("expected empty message, got %q", apiErr.Message)
	}
	if string(apiErr.Raw) != "<html>oops</html>" {
		t.Error("raw payload should be preserved even when unparseable")
	}
}
