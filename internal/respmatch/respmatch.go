// Package respmatch builds the patterns that recognize the game server's
// response lines for each moderation command family. The wordings here track
// the remote server's exact phrasing (punctuation included) and are the only
// place that needs touching when it changes upstream.
package respmatch

import (
	"regexp"
	"strings"
)

type Family int

const (
	Promote Family = iota
	Demote
	Mute
	Unmute
	MuteEveryone
	UnmuteEveryone
	Invite
	Kick
	SetRank
)

func (f Family) String() string {
	switch f {
	case Promote:
		return "promote"
	case Demote:
		return "demote"
	case Mute:
		return "mute"
	case Unmute:
		return "unmute"
	case MuteEveryone:
		return "mute_everyone"
	case UnmuteEveryone:
		return "unmute_everyone"
	case Invite:
		return "invite"
	case Kick:
		return "kick"
	case SetRank:
		return "setrank"
	}
	return "unknown"
}

// Params parameterize a pattern by the names the command was issued with.
// Empty fields match any value.
type Params struct {
	Target string // player name
	Rank   string // rank name, for setrank
}

const (
	anyName = `[A-Za-z0-9_]{1,16}`
	anyRank = `[\w+ ]+`
	// an optional bracketed network-rank tag before a player name
	tagged = `(?:\[[^\]]+\] )?`
)

func (p Params) target() string {
	if strings.TrimSpace(p.Target) == "" {
		return anyName
	}
	return regexp.QuoteMeta(strings.TrimSpace(p.Target))
}

func (p Params) rank() string {
	if strings.TrimSpace(p.Rank) == "" {
		return anyRank
	}
	return regexp.QuoteMeta(strings.TrimSpace(p.Rank))
}

// Success compiles the case-insensitive pattern matching every confirmation
// wording for the family, with named groups target, oldrank, newrank,
// executor and duration where the wording carries them.
func Success(f Family, p Params) *regexp.Regexp {
	name := p.target()
	var alts []string
	switch f {
	case Promote:
		alts = []string{
			tagged + `(?P<target>` + name + `) was promoted from (?P<oldrank>` + anyRank + `) to (?P<newrank>` + anyRank + `)!?`,
		}
	case Demote:
		alts = []string{
			tagged + `(?P<target>` + name + `) was demoted from (?P<oldrank>` + anyRank + `) to (?P<newrank>` + anyRank + `)!?`,
		}
	case SetRank:
		alts = []string{
			tagged + `(?P<target>` + name + `) was (?:promoted|demoted) from (?P<oldrank>` + anyRank + `) to (?P<newrank>` + p.rank() + `)!?`,
		}
	case Mute:
		alts = []string{
			tagged + `(?P<executor>` + anyName + `) has muted ` + tagged + `(?P<target>` + name + `) for (?P<duration>\w+)`,
		}
	case Unmute:
		alts = []string{
			tagged + `(?P<executor>` + anyName + `) has unmuted ` + tagged + `(?P<target>` + name + `)`,
		}
	case MuteEveryone:
		alts = []string{
			tagged + `(?P<executor>` + anyName + `) has muted the guild chat for (?P<duration>\w+)!?`,
		}
	case UnmuteEveryone:
		alts = []string{
			tagged + `(?P<executor>` + anyName + `) has unmuted the guild chat!?`,
		}
	case Invite:
		alts = []string{
			`You invited ` + tagged + `(?P<target>` + name + `) to your guild\. They have 5 minutes to accept\.`,
			`You sent an offline invite to ` + tagged + name + `! They will have 5 minutes to accept once they come online!`,
		}
	case Kick:
		alts = []string{
			tagged + `(?P<target>` + name + `) was kicked from the guild by ` + tagged + `(?P<executor>` + anyName + `)!?`,
		}
	}
	return compile(alts)
}

// Abort compiles the case-insensitive pattern matching every recognized
// error wording for the family, the shared generic errors included.
func Abort(f Family, p Params) *regexp.Regexp {
	name := p.target()
	alts := []string{
		`You must be the Guild Master to use that command!`,
		`You do not have permission to use this command!`,
		`Your guild rank does not have permission to use this!`,
		`Can't find a player by the name of '` + name + `'`,
		`You cannot say the same message twice!`,
	}
	switch f {
	case Promote, SetRank:
		alts = append(alts,
			name+` is already the highest rank you've unlocked!`,
			name+` is the guild master so can't be promoted anymore!`,
			`You can only promote up to your own rank!`,
		)
		if f == SetRank {
			alts = append(alts, `I couldn't find a rank by the name of '`+p.rank()+`'!`)
		}
	case Demote:
		alts = append(alts,
			name+` is already the lowest rank you've unlocked!`,
			name+` is the guild master so can't be demoted!`,
			`You can only demote up to your own rank!`,
		)
	case Mute, MuteEveryone:
		alts = append(alts,
			`This player is already muted!`,
			`You cannot mute a guild member with a higher guild rank!`,
			`You cannot mute someone for more than one month`,
			`You cannot mute someone for less than a minute`,
			`You cannot mute yourself from the guild!`,
		)
	case Unmute, UnmuteEveryone:
		alts = append(alts,
			`This player is not muted!`,
			`The guild is not muted!`,
		)
	case Invite:
		alts = append(alts,
			name+` is already in another guild!`,
			name+` is already in your guild!`,
			`You've already invited `+name+` to your guild! Wait for them to accept!`,
			`Your guild is full!`,
		)
	case Kick:
		alts = append(alts,
			`You cannot kick this player!`,
			`You can only kick someone with a lower rank!`,
		)
	}
	return compile(alts)
}

func compile(alts []string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)^(?:` + strings.Join(alts, `|`) + `)`)
}

// Group returns the text captured under the named group, or "".
func Group(re *regexp.Regexp, text, group string) string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	for i, n := range re.SubexpNames() {
		if n == group && i < len(m) {
			return m[i]
		}
	}
	return ""
}
