package stream

import "fmt"

type Status string

const (
	StatusInactive Status = "inactive"
	StatusStarting Status = "starting"
	StatusActive   Status = "active"
	StatusStopping Status = "stopping"
	StatusFailed   Status = "failed"
)

type Kind string

const (
	KindLive     Kind = "live"
	KindSnapshot Kind = "snapshot"
	KindEvent    Kind = "event"
)

var Kinds = []Kind{KindLive, KindSnapshot, KindEvent}

func ParseKind(s string) (Kind, error) {
	for _, kind := range Kinds {
		if string(kind) == s {
			return kind, nil
		}
	}
	return "", fmt.Errorf("stream: unknown kind %q", s)
}

// Public maps internal statuses to the three published ones
func (s Status) Public() Status {
	switch s {
	case StatusActive, StatusFailed:
		return s
	}
	return StatusInactive
}
