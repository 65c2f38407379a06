package bridge

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ruleAction tells the bridge what a matched system line means for its own
// state, beyond relaying the announcement.
type ruleAction int

const (
	actionNone ruleAction = iota
	actionMemberJoined
	actionMemberLeft
	actionMemberKicked
	actionRankChanged
	actionPlayerMuted
	actionPlayerUnmuted
	actionGuildMuted
	actionGuildUnmuted
)

type systemRule struct {
	re       *regexp.Regexp
	template string // msgcat key, empty to skip the announcement
	action   ruleAction
}

const namePat = `[A-Za-z0-9_]{1,16}`

// systemRules is the announcement table applied to System events, first
// match wins. Wordings follow the server's guild notification lines.
var systemRules = []systemRule{
	{
		re:       regexp.MustCompile(`^Guild > (?P<Player>` + namePat + `) joined\.$`),
		template: "", // presence blips are noisy, not relayed
		action:   actionNone,
	},
	{
		re:       regexp.MustCompile(`^Guild > (?P<Player>` + namePat + `) left\.$`),
		template: "",
		action:   actionNone,
	},
	{
		re:       regexp.MustCompile(`^(?:\[[^\]]+\] )?(?P<Player>` + namePat + `) joined the guild!$`),
		template: "announce.join",
		action:   actionMemberJoined,
	},
	{
		re:       regexp.MustCompile(`^(?:\[[^\]]+\] )?(?P<Player>` + namePat + `) left the guild!$`),
		template: "announce.leave",
		action:   actionMemberLeft,
	},
	{
		re:       regexp.MustCompile(`^(?:\[[^\]]+\] )?(?P<Target>` + namePat + `) was kicked from the guild by (?:\[[^\]]+\] )?(?P<Executor>` + namePat + `)!$`),
		template: "announce.kick",
		action:   actionMemberKicked,
	},
	{
		re:       regexp.MustCompile(`^(?:\[[^\]]+\] )?(?P<Target>` + namePat + `) was promoted from (?P<OldRank>[\w+ ]+) to (?P<NewRank>[\w+ ]+)$`),
		template: "announce.promote",
		action:   actionRankChanged,
	},
	{
		re:       regexp.MustCompile(`^(?:\[[^\]]+\] )?(?P<Target>` + namePat + `) was demoted from (?P<OldRank>[\w+ ]+) to (?P<NewRank>[\w+ ]+)$`),
		template: "announce.demote",
		action:   actionRankChanged,
	},
	{
		re:       regexp.MustCompile(`^(?:\[[^\]]+\] )?(?P<Executor>` + namePat + `) has muted the guild chat for (?P<Duration>\w+)!?$`),
		template: "announce.guild_mute",
		action:   actionGuildMuted,
	},
	{
		re:       regexp.MustCompile(`^(?:\[[^\]]+\] )?(?P<Executor>` + namePat + `) has unmuted the guild chat!?$`),
		template: "announce.guild_unmute",
		action:   actionGuildUnmuted,
	},
	{
		re:       regexp.MustCompile(`^(?:\[[^\]]+\] )?(?P<Executor>` + namePat + `) has muted (?:\[[^\]]+\] )?(?P<Target>` + namePat + `) for (?P<Duration>\w+)$`),
		template: "announce.mute",
		action:   actionPlayerMuted,
	},
	{
		re:       regexp.MustCompile(`^(?:\[[^\]]+\] )?(?P<Executor>` + namePat + `) has unmuted (?:\[[^\]]+\] )?(?P<Target>` + namePat + `)$`),
		template: "announce.unmute",
		action:   actionPlayerUnmuted,
	},
}

// matchSystem returns the first matching rule and its named captures.
func matchSystem(plain string) (*systemRule, map[string]string) {
	for i := range systemRules {
		r := &systemRules[i]
		m := r.re.FindStringSubmatch(plain)
		if m == nil {
			continue
		}
		caps := make(map[string]string)
		for gi, gn := range r.re.SubexpNames() {
			if gn != "" && gi < len(m) {
				caps[gn] = m[gi]
			}
		}
		return r, caps
	}
	return nil, nil
}

// parseMuteDuration reads the server's compact duration tokens ("30m", "2h",
// "7d"). Unknown input yields zero.
func parseMuteDuration(s string) time.Duration {
	s = strings.TrimSpace(strings.ToLower(s))
	if len(s) < 2 {
		return 0
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return 0
	}
	switch s[len(s)-1] {
	case 's':
		return time.Duration(n) * time.Second
	case 'm':
		return time.Duration(n) * time.Minute
	case 'h':
		return time.Duration(n) * time.Hour
	case 'd':
		return time.Duration(n) * 24 * time.Hour
	default:
		return 0
	}
}
