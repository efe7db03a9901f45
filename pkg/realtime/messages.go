package realtime

import (
	"encoding/json"
	"fmt"
)

// Outbound message type discriminators.
const (
	TypeAppend = "input_audio_buffer.append"
	TypeCommit = "input_audio_buffer.commit"
)

// appendAudioMessage carries one captured frame.
type appendAudioMessage struct {
	Type  string `json:"type"`
	Audio string `json:"audio"` // base64-encoded PCM16 mono 16 kHz
}

type commitMessage struct {
	Type string `json:"type"`
}

// AppendMessage encodes an input_audio_buffer.append message for a frame
// already transport-encoded as base64 text.
func AppendMessage(audioB64 string) ([]byte, error) {
	return marshal(appendAudioMessage{Type: TypeAppend, Audio: audioB64})
}

// CommitMessage encodes the utterance-boundary message sent after the bridge
// reports speech stopped.
func CommitMessage() ([]byte, error) {
	return marshal(commitMessage{Type: TypeCommit})
}

func marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("realtime: marshal: %w", err)
	}
	return data, nil
}
