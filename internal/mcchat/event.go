package mcchat

import (
	"strings"
	"time"
)

type EventType int

const (
	EventSystem EventType = iota
	EventGuild
	EventOfficer
	EventParty
	EventWhisper
)

func (t EventType) String() string {
	switch t {
	case EventGuild:
		return "guild"
	case EventOfficer:
		return "officer"
	case EventParty:
		return "party"
	case EventWhisper:
		return "whisper"
	default:
		return "system"
	}
}

// Event is one classified inbound chat line. Produced purely from packet text;
// safe to share across goroutines.
type Event struct {
	Type      EventType
	Author    string // empty for system lines
	Raw       string // original text, formatting codes intact
	Plain     string // formatting codes stripped
	Self      bool   // authored by the bridging account itself
	Timestamp time.Time
}

// StripFormatting removes legacy section-sign formatting codes (e.g. "§a", "§l")
// from s, leaving the visible text.
func StripFormatting(s string) string {
	if !strings.ContainsRune(s, '§') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	skip := false
	for _, r := range s {
		if skip {
			skip = false
			continue
		}
		if r == '§' {
			skip = true
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
