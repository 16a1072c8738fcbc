package wire

import "testing"

func TestParseKillValid(t *testing.T) {
	cases := []struct {
		in   string
		want KillCommand
	}{
		{"KILL 42", KillCommand{Target: KillTarget{ID: 42}, Scope: KillScopeConnection, Strength: KillSoft}},
		{"KILL QUERY 42;", KillCommand{Target: KillTarget{ID: 42}, Scope: KillScopeQuery, Strength: KillSoft}},
		{"KILL HARD CONNECTION 7", KillCommand{Target: KillTarget{ID: 7}, Scope: KillScopeConnection, Strength: KillHard}},
		{"kill soft query 1", KillCommand{Target: KillTarget{ID: 1}, Scope: KillScopeQuery, Strength: KillSoft}},
		{"KILL USER bob", KillCommand{Target: KillTarget{User: "bob", byUser: true}, Scope: KillScopeConnection, Strength: KillSoft}},
	}
	for _, c := range cases {
		got, ok := ParseKill(c.in)
		if !ok {
			t.Fatalf("ParseKill(%q): expected ok", c.in)
		}
		if got.Target.ID != c.want.Target.ID || got.Target.User != c.want.Target.User ||
			got.Target.byUser != c.want.Target.byUser || got.Scope != c.want.Scope || got.Strength != c.want.Strength {
			t.Fatalf("ParseKill(%q) = %+v, want %+v", c.in, got, c.want)
		}
	}
}

func TestParseKillMalformedNeverPanics(t *testing.T) {
	cases := []string{
		"",
		"KILL",
		"KILL foo bar baz qux",
		"KILL -1",
		"KILL USER",
		"KILL USER 123 456",
		"SELECT 1",
		"KILL 3.14",
	}
	for _, c := range cases {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("ParseKill(%q) panicked: %v", c, r)
				}
			}()
			if _, ok := ParseKill(c); ok {
				t.Fatalf("ParseKill(%q): expected not ok", c)
			}
		}()
	}
}

func TestIsKillPrefix(t *testing.T) {
	if !IsKillPrefix("  kill 5") {
		t.Fatal("expected kill prefix match")
	}
	if IsKillPrefix("SELECT kill_count FROM t") {
		t.Fatal("expected no match")
	}
}
