package stream

import "github.com/ringbridge/ringbridge/pkg/ring"

const (
	CommandStart = "start"
	CommandStop  = "stop"
)

// Command is a request to the signaling worker
type Command struct {
	Command    string     `json:"command"`
	StreamData StreamData `json:"streamData,omitempty"`
}

type StreamData struct {
	Ticket     string `json:"ticket,omitempty"`
	PublishURL string `json:"publishUrl,omitempty"`
}

const (
	EventState    = "state"
	EventLogInfo  = "log_info"
	EventLogError = "log_error"
)

// Event is an output of the signaling worker
type Event struct {
	Type  string         `json:"type"`
	Data  string         `json:"data"`
	Extra *ring.AltMedia `json:"extra,omitempty"`
}
