// Package realtime defines the client side of the speech bridge wire
// protocol: the typed inbound event union, the outbound message shapes, the
// duplex [Channel] abstraction and the endpoint URL rules.
//
// Every message is a JSON object discriminated by its "type" field. Audio is
// carried as base64-encoded PCM16 mono.
package realtime

import (
	"encoding/json"
	"fmt"
)

// Inbound event type discriminators.
const (
	TypeSpeechStarted          = "input_audio_buffer.speech_started"
	TypeSpeechStopped          = "input_audio_buffer.speech_stopped"
	TypeTranscriptionCompleted = "conversation.item.input_audio_transcription.completed"
	TypeAudioDelta             = "response.audio.delta"
	TypeAudioDone              = "response.audio.done"
	TypeTextDelta              = "response.text.delta"
	TypeAudioTranscriptDelta   = "response.audio_transcript.delta"
	TypeError                  = "error"
)

// ServerEvent is one decoded inbound event. The interface is sealed: only the
// variants in this package implement it, and [Handler] has one method per
// variant, so adding a variant is a compile-time checked change for every
// consumer.
type ServerEvent interface {
	// Type returns the wire discriminator the event was decoded from.
	Type() string

	dispatch(h Handler)
}

// Handler receives each [ServerEvent] variant through [Dispatch].
type Handler interface {
	SpeechStarted(SpeechStarted)
	SpeechStopped(SpeechStopped)
	TranscriptionCompleted(TranscriptionCompleted)
	AudioDelta(AudioDelta)
	AudioDone(AudioDone)
	TextDelta(TextDelta)
	Error(Error)
	Unknown(Unknown)
}

// Dispatch calls the Handler method matching ev's variant.
func Dispatch(ev ServerEvent, h Handler) { ev.dispatch(h) }

// SpeechStarted reports that the bridge detected the start of user speech.
type SpeechStarted struct{}

// SpeechStopped reports the end of user speech.
type SpeechStopped struct{}

// TranscriptionCompleted carries the final transcript of the user's utterance.
type TranscriptionCompleted struct {
	Text string
}

// AudioDelta carries one base64 PCM16 frame of response audio.
type AudioDelta struct {
	Audio string
}

// AudioDone marks the end of the current response's audio.
type AudioDone struct{}

// TextDelta is a fragment of the response text.
type TextDelta struct {
	Text string

	// Wire is the discriminator the fragment arrived as: response.text.delta
	// or response.audio_transcript.delta.
	Wire string
}

// Error is an application error reported by the bridge.
type Error struct {
	Message string
	Code    string
}

// Unknown is any event whose type this client does not understand.
type Unknown struct {
	Wire string
}

func (SpeechStarted) Type() string          { return TypeSpeechStarted }
func (SpeechStopped) Type() string          { return TypeSpeechStopped }
func (TranscriptionCompleted) Type() string { return TypeTranscriptionCompleted }
func (AudioDelta) Type() string             { return TypeAudioDelta }
func (AudioDone) Type() string              { return TypeAudioDone }
func (e TextDelta) Type() string {
	if e.Wire != "" {
		return e.Wire
	}
	return TypeTextDelta
}
func (Error) Type() string     { return TypeError }
func (e Unknown) Type() string { return e.Wire }

func (e SpeechStarted) dispatch(h Handler)          { h.SpeechStarted(e) }
func (e SpeechStopped) dispatch(h Handler)          { h.SpeechStopped(e) }
func (e TranscriptionCompleted) dispatch(h Handler) { h.TranscriptionCompleted(e) }
func (e AudioDelta) dispatch(h Handler)             { h.AudioDelta(e) }
func (e AudioDone) dispatch(h Handler)              { h.AudioDone(e) }
func (e TextDelta) dispatch(h Handler)              { h.TextDelta(e) }
func (e Error) dispatch(h Handler)                  { h.Error(e) }
func (e Unknown) dispatch(h Handler)                { h.Unknown(e) }

// serverErrorDetail is the nested object of an error event:
// {"type":"error","error":{"type":"...","code":"...","message":"..."}}.
type serverErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// wireEvent is the union of all inbound fields.
type wireEvent struct {
	Type string `json:"type"`

	// response.audio.delta, response.text.delta, response.audio_transcript.delta
	Delta string `json:"delta,omitempty"`

	// conversation.item.input_audio_transcription.completed
	Transcript string `json:"transcript,omitempty"`

	// error: an object as documented, or a bare string from some bridges.
	Error json.RawMessage `json:"error,omitempty"`
}

// ParseServerEvent decodes one inbound message. Unrecognised types yield an
// [Unknown] event rather than an error; only malformed JSON or a missing type
// is an error.
func ParseServerEvent(data []byte) (ServerEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("realtime: decode event: %w", err)
	}
	switch w.Type {
	case "":
		return nil, fmt.Errorf("realtime: event has no type")
	case TypeSpeechStarted:
		return SpeechStarted{}, nil
	case TypeSpeechStopped:
		return SpeechStopped{}, nil
	case TypeTranscriptionCompleted:
		return TranscriptionCompleted{Text: w.Transcript}, nil
	case TypeAudioDelta:
		return AudioDelta{Audio: w.Delta}, nil
	case TypeAudioDone:
		return AudioDone{}, nil
	case TypeTextDelta, TypeAudioTranscriptDelta:
		return TextDelta{Text: w.Delta, Wire: w.Type}, nil
	case TypeError:
		e, err := parseError(w.Error)
		if err != nil {
			return nil, err
		}
		return e, nil
	default:
		return Unknown{Wire: w.Type}, nil
	}
}

func parseError(raw json.RawMessage) (Error, error) {
	e := Error{Message: "unknown error"}
	if len(raw) == 0 || string(raw) == "null" {
		return e, nil
	}
	if raw[0] == '"' {
		var msg string
		if err := json.Unmarshal(raw, &msg); err != nil {
			return Error{}, fmt.Errorf("realtime: decode error message: %w", err)
		}
		if msg != "" {
			e.Message = msg
		}
		return e, nil
	}
	var d serverErrorDetail
	if err := json.Unmarshal(raw, &d); err != nil {
		return Error{}, fmt.Errorf("realtime: decode error detail: %w", err)
	}
	if d.Message != "" {
		e.Message = d.Message
	}
	e.Code = d.Code
	return e, nil
}
