package ring

import (
	"errors"
	"strconv"
	"strings"
)

// EventSelect picks a recorded event: "Motion 2", "Ding 1 (Transcoded)"
type EventSelect struct {
	Kind       string // motion, ding, on_demand
	Index      int    // 1 is the most recent
	Transcoded bool
}

const transcodedSuffix = " (Transcoded)"

var eventKinds = map[string]string{
	"motion":    "motion",
	"ding":      "ding",
	"on-demand": "on_demand",
}

var ErrEventSelect = errors.New("ring: wrong event select")

func ParseEventSelect(s string) (EventSelect, error) {
	var sel EventSelect

	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, transcodedSuffix) {
		sel.Transcoded = true
		s = strings.TrimSuffix(s, transcodedSuffix)
	}

	name, index, ok := strings.Cut(s, " ")
	if !ok {
		return sel, ErrEventSelect
	}

	if sel.Kind, ok = eventKinds[strings.ToLower(name)]; !ok {
		return sel, ErrEventSelect
	}

	var err error
	if sel.Index, err = strconv.Atoi(index); err != nil || sel.Index < 1 {
		return sel, ErrEventSelect
	}

	return sel, nil
}

func (s EventSelect) String() string {
	var name string
	switch s.Kind {
	case "motion":
		name = "Motion"
	case "ding":
		name = "Ding"
	case "on_demand":
		name = "On-demand"
	}

	name += " " + strconv.Itoa(s.Index)
	if s.Transcoded {
		name += transcodedSuffix
	}
	return name
}
