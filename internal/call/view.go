package call

import "github.com/brightclean/callbridge/internal/activity"

// View is the snapshot rendered by the user interface. It carries no hint of
// whether activity came from the bridge or from simulation.
type View struct {
	SessionID string `json:"session_id,omitempty"`
	State     State  `json:"-"`
	StateName string `json:"state"`
	Muted     bool   `json:"muted"`

	// Listening is true between speech start and stop.
	Listening bool `json:"listening"`

	Level activity.Level `json:"level"`

	// UserText is the latest final transcript of what the user said.
	UserText string `json:"user_text,omitempty"`

	// AssistantText is the running response transcript.
	AssistantText string `json:"assistant_text,omitempty"`

	// Error is the last user-visible problem. It does not imply the call
	// ended.
	Error string `json:"error,omitempty"`

	DurationSeconds int `json:"duration_seconds"`
}

// Observer receives every published View from the manager loop. Update must
// return quickly.
type Observer interface {
	Update(View)
}

// ObserverFunc adapts a function to [Observer].
type ObserverFunc func(View)

// Update calls f(v).
func (f ObserverFunc) Update(v View) { f(v) }
