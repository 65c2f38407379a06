package respmatch

import "testing"

func TestPromoteSuccessCaptures(t *testing.T) {
	re := Success(Promote, Params{Target: "Foo"})
	line := "Foo was promoted from Member to Officer"
	if !re.MatchString(line) {
		t.Fatalf("pattern %q must match %q", re.String(), line)
	}
	if got := Group(re, line, "target"); got != "Foo" {
		t.Fatalf("target = %q", got)
	}
	if got := Group(re, line, "oldrank"); got != "Member" {
		t.Fatalf("oldrank = %q", got)
	}
	if got := Group(re, line, "newrank"); got != "Officer" {
		t.Fatalf("newrank = %q", got)
	}
}

func TestPromoteSuccessTaggedAndCaseInsensitive(t *testing.T) {
	re := Success(Promote, Params{Target: "Foo"})
	for _, line := range []string{
		"[MVP+] Foo was promoted from Member to Officer!",
		"foo WAS PROMOTED FROM member TO officer",
	} {
		if !re.MatchString(line) {
			t.Fatalf("must match %q", line)
		}
	}
	if re.MatchString("Bar was promoted from Member to Officer") {
		t.Fatal("must not match a different player")
	}
}

func TestMuteCaptures(t *testing.T) {
	re := Success(Mute, Params{Target: "Foo"})
	line := "[MVP+] Admin has muted [VIP] Foo for 30d"
	if !re.MatchString(line) {
		t.Fatalf("must match %q", line)
	}
	if got := Group(re, line, "executor"); got != "Admin" {
		t.Fatalf("executor = %q", got)
	}
	if got := Group(re, line, "duration"); got != "30d" {
		t.Fatalf("duration = %q", got)
	}
}

func TestGuildMuteWordings(t *testing.T) {
	re := Success(MuteEveryone, Params{})
	if !re.MatchString("Admin has muted the guild chat for 1h!") {
		t.Fatal("guild mute wording must match")
	}
	re = Success(UnmuteEveryone, Params{})
	if !re.MatchString("[MVP] Admin has unmuted the guild chat!") {
		t.Fatal("guild unmute wording must match")
	}
}

func TestInviteAndKickWordings(t *testing.T) {
	inv := Success(Invite, Params{Target: "Foo"})
	for _, line := range []string{
		"You invited Foo to your guild. They have 5 minutes to accept.",
		"You sent an offline invite to [VIP] Foo! They will have 5 minutes to accept once they come online!",
	} {
		if !inv.MatchString(line) {
			t.Fatalf("invite must match %q", line)
		}
	}

	kick := Success(Kick, Params{Target: "Foo"})
	line := "[VIP] Foo was kicked from the guild by [MVP+] Admin!"
	if !kick.MatchString(line) {
		t.Fatalf("kick must match %q", line)
	}
	if got := Group(kick, line, "executor"); got != "Admin" {
		t.Fatalf("executor = %q", got)
	}
}

func TestAbortWordings(t *testing.T) {
	cases := []struct {
		family Family
		params Params
		line   string
	}{
		{Promote, Params{Target: "Foo"}, "You must be the Guild Master to use that command!"},
		{Promote, Params{Target: "Foo"}, "Can't find a player by the name of 'Foo'"},
		{Promote, Params{Target: "Foo"}, "Foo is already the highest rank you've unlocked!"},
		{Demote, Params{Target: "Foo"}, "Foo is the guild master so can't be demoted!"},
		{Mute, Params{Target: "Foo"}, "You cannot mute a guild member with a higher guild rank!"},
		{Unmute, Params{Target: "Foo"}, "This player is not muted!"},
		{Invite, Params{Target: "Foo"}, "Foo is already in another guild!"},
		{Kick, Params{Target: "Foo"}, "You cannot kick this player!"},
		{SetRank, Params{Target: "Foo", Rank: "Elder"}, "I couldn't find a rank by the name of 'Elder'!"},
	}
	for _, tc := range cases {
		re := Abort(tc.family, tc.params)
		if !re.MatchString(tc.line) {
			t.Errorf("%s abort must match %q", tc.family, tc.line)
		}
	}
}

func TestAbortDoesNotMatchSuccess(t *testing.T) {
	re := Abort(Promote, Params{Target: "Foo"})
	if re.MatchString("Foo was promoted from Member to Officer") {
		t.Fatal("abort pattern must not match the success line")
	}
}

func TestLibraryMemoizes(t *testing.T) {
	lib := NewLibrary()
	a := lib.Success(Promote, Params{Target: "Foo"})
	b := lib.Success(Promote, Params{Target: "Foo"})
	if a != b {
		t.Fatal("same family+params must return the cached pattern")
	}
	c := lib.Success(Promote, Params{Target: "Bar"})
	if a == c {
		t.Fatal("different params must compile distinct patterns")
	}
}
