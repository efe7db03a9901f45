package call

import (
	"github.com/brightclean/callbridge/pkg/realtime"
)

// Router applies server events, real or synthesized, to the current session
// and view. It runs on the manager loop only.
type Router struct {
	m *Manager
}

var _ realtime.Handler = (*Router)(nil)

// Route dispatches ev to the matching handler method.
func (r *Router) Route(ev realtime.ServerEvent) {
	realtime.Dispatch(ev, r)
}

// SpeechStarted opens a new user turn. The next response replaces the
// transcript even if the previous one ended without audio.
func (r *Router) SpeechStarted(realtime.SpeechStarted) {
	r.m.transcript.EndTurn()
	r.m.view.Listening = true
	r.m.publish()
}

// SpeechStopped ends listening and tells the bridge the utterance is
// complete. Synthesized events have no channel to commit to.
func (r *Router) SpeechStopped(realtime.SpeechStopped) {
	r.m.view.Listening = false
	s := r.m.sess
	if s != nil && s.channel != nil && s.State() == Connected {
		if msg, err := realtime.CommitMessage(); err == nil {
			s.outbox.push(msg, false)
		}
	}
	r.m.publish()
}

func (r *Router) TranscriptionCompleted(ev realtime.TranscriptionCompleted) {
	r.m.transcript.EndTurn()
	r.m.view.UserText = ev.Text
	r.m.publish()
}

func (r *Router) AudioDelta(ev realtime.AudioDelta) {
	r.m.transcript.BeginResponse()
	if s := r.m.sess; s != nil && s.playback != nil {
		s.playback.Enqueue(ev.Audio)
	}
}

func (r *Router) AudioDone(realtime.AudioDone) {
	if s := r.m.sess; s != nil && s.playback != nil {
		s.playback.EndTurn()
	}
	r.m.transcript.EndTurn()
}

func (r *Router) TextDelta(ev realtime.TextDelta) {
	r.m.transcript.Append(ev.Text)
	r.m.view.AssistantText = r.m.transcript.String()
	r.m.publish()
}

// Error surfaces the message without ending the call.
func (r *Router) Error(ev realtime.Error) {
	r.m.sessionLog().Warn("bridge reported an error", "message", ev.Message, "code", ev.Code)
	r.m.view.Error = ev.Message
	r.m.publish()
}

func (r *Router) Unknown(ev realtime.Unknown) {
	r.m.sessionLog().Debug("ignoring unknown server event", "type", ev.Wire)
}
