package main

import (
	"log/slog"

	"github.com/brightclean/callbridge/internal/call"
)

// viewLogger renders published views as log lines. Only changes other than
// the level meter are logged; levels go out at debug.
type viewLogger struct {
	log  *slog.Logger
	prev call.View
}

var _ call.Observer = (*viewLogger)(nil)

func newViewLogger(l *slog.Logger) *viewLogger { return &viewLogger{log: l} }

// Update runs on the manager loop, so prev needs no lock.
func (v *viewLogger) Update(cur call.View) {
	prev := v.prev
	v.prev = cur

	if cur.State != prev.State {
		v.log.Info("call", "state", cur.StateName, "session_id", cur.SessionID)
	}
	if cur.Listening != prev.Listening {
		if cur.Listening {
			v.log.Info("listening")
		} else {
			v.log.Info("processing")
		}
	}
	if cur.UserText != prev.UserText && cur.UserText != "" {
		v.log.Info("you said", "text", cur.UserText)
	}
	if cur.AssistantText != prev.AssistantText && cur.AssistantText != "" {
		v.log.Info("assistant", "text", cur.AssistantText)
	}
	if cur.Error != prev.Error && cur.Error != "" {
		v.log.Warn(cur.Error)
	}
	if cur.Muted != prev.Muted {
		v.log.Info("mute", "muted", cur.Muted)
	}
	if cur.Level != prev.Level {
		v.log.Debug("level", "level", int(cur.Level), "duration_s", cur.DurationSeconds)
	}
}
