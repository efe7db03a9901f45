package call

import "strings"

// TranscriptBuffer accumulates the assistant's response text. A turn ends at
// response audio done or when the user starts a new turn; the buffer is then
// cleared by the next response delta, so the previous reply stays visible
// until the next one starts.
//
// Not safe for concurrent use; the manager loop owns it.
type TranscriptBuffer struct {
	b       strings.Builder
	settled bool // the last turn ended; the next delta starts afresh
}

// BeginResponse is called for every response delta, audio or text.
func (t *TranscriptBuffer) BeginResponse() {
	if t.settled {
		t.b.Reset()
		t.settled = false
	}
}

// Append adds a text fragment to the current turn.
func (t *TranscriptBuffer) Append(fragment string) {
	t.BeginResponse()
	t.b.WriteString(fragment)
}

// EndTurn marks the current response as complete.
func (t *TranscriptBuffer) EndTurn() { t.settled = true }

// Reset empties the buffer for a new call.
func (t *TranscriptBuffer) Reset() {
	t.b.Reset()
	t.settled = false
}

func (t *TranscriptBuffer) String() string { return t.b.String() }
