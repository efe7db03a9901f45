package call

import "testing"

func TestTranscriptBuffer(t *testing.T) {
	t.Parallel()
	var tb TranscriptBuffer
	tb.Append("Hello")
	tb.BeginResponse()
	tb.Append(", world")
	if got := tb.String(); got != "Hello, world" {
		t.Fatalf("String = %q", got)
	}

	tb.EndTurn()
	if got := tb.String(); got != "Hello, world" {
		t.Errorf("ended turn cleared early: %q", got)
	}

	// An audio delta starts the next turn before any text arrives.
	tb.BeginResponse()
	if got := tb.String(); got != "" {
		t.Errorf("after next response began = %q, want empty", got)
	}
	tb.Append("Bye")
	tb.BeginResponse()
	if got := tb.String(); got != "Bye" {
		t.Errorf("String = %q, want Bye", got)
	}

	tb.EndTurn()
	tb.Reset()
	tb.Append("fresh")
	if got := tb.String(); got != "fresh" {
		t.Errorf("after Reset = %q", got)
	}
}
