package mcchat

import (
	"regexp"
	"strings"
	"time"
)

// Line shapes the server emits for the channels we bridge. A bracketed network
// rank may precede the player name and a bracketed guild rank may follow it:
//
//	Guild > [MVP+] Somebody [Officer]: hello
//	Officer > Somebody: psst
//	Party > [VIP] Somebody: on my way
//	From Somebody: are you there
//	To Somebody: yes
var (
	reChannelLine = regexp.MustCompile(`^(Guild|Officer|Party) > (?:\[[^\]]+\] )?([A-Za-z0-9_]{1,16})(?: \[[^\]]+\])?: (.*)$`)
	reWhisperLine = regexp.MustCompile(`^(From|To) (?:\[[^\]]+\] )?([A-Za-z0-9_]{1,16}): (.*)$`)
)

// Classify turns one raw chat line into an Event. selfName is the bridging
// account's own in-game name; matching authors are tagged Self but still
// returned so callers can correlate command responses against them.
// Unrecognized input degrades to a System event, never an error.
func Classify(raw string, selfName string) Event {
	ev := Event{
		Type:      EventSystem,
		Raw:       raw,
		Plain:     strings.TrimRight(StripFormatting(raw), " "),
		Timestamp: time.Now(),
	}

	if m := reChannelLine.FindStringSubmatch(ev.Plain); m != nil {
		switch m[1] {
		case "Guild":
			ev.Type = EventGuild
		case "Officer":
			ev.Type = EventOfficer
		case "Party":
			ev.Type = EventParty
		}
		ev.Author = m[2]
		ev.Plain = m[3]
	} else if m := reWhisperLine.FindStringSubmatch(ev.Plain); m != nil {
		ev.Type = EventWhisper
		ev.Author = m[2]
		ev.Plain = m[3]
		if m[1] == "To" {
			// an echo of our own outgoing whisper
			ev.Self = true
		}
	}

	if ev.Author != "" && strings.EqualFold(ev.Author, selfName) {
		ev.Self = true
	}
	return ev
}
