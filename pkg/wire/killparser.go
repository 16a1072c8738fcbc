package wire

import (
	"strconv"
	"strings"
)

// KillScope and KillStrength per spec section 4.A's KILL grammar.
type KillScope int
type KillStrength int

const (
	KillScopeConnection KillScope = iota
	KillScopeQuery
)

const (
	KillSoft KillStrength = iota
	KillHard
)

// KillTarget is either a numeric connection id or a username.
type KillTarget struct {
	ID       uint64
	User     string
	byUser   bool
}

func (t KillTarget) IsUser() bool { return t.byUser }

// KillCommand is the parsed form of a `KILL ...` pseudo-statement.
type KillCommand struct {
	Target   KillTarget
	Scope    KillScope
	Strength KillStrength
}

// ParseKill parses the grammar:
//
//	KILL [HARD|SOFT] [CONNECTION|QUERY] (<id> | USER <name>) [;]
//
// Missing optional tokens default to SOFT and CONNECTION. It returns
// ok=false (no panic) for anything that doesn't match, including id values
// that are not positive 64-bit integers and USER values that are not bare
// names.
func ParseKill(stmt string) (KillCommand, bool) {
	s := strings.TrimSpace(stmt)
	s = strings.TrimSuffix(s, ";")
	fields := strings.Fields(s)
	if len(fields) == 0 || !strings.EqualFold(fields[0], "KILL") {
		return KillCommand{}, false
	}
	fields = fields[1:]
	cmd := KillCommand{Strength: KillSoft, Scope: KillScopeConnection}

	if len(fields) > 0 {
		switch {
		case strings.EqualFold(fields[0], "HARD"):
			cmd.Strength = KillHard
			fields = fields[1:]
		case strings.EqualFold(fields[0], "SOFT"):
			cmd.Strength = KillSoft
			fields = fields[1:]
		}
	}
	if len(fields) > 0 {
		switch {
		case strings.EqualFold(fields[0], "CONNECTION"):
			cmd.Scope = KillScopeConnection
			fields = fields[1:]
		case strings.EqualFold(fields[0], "QUERY"):
			cmd.Scope = KillScopeQuery
			fields = fields[1:]
		}
	}
	if len(fields) == 0 {
		return KillCommand{}, false
	}
	if strings.EqualFold(fields[0], "USER") {
		if len(fields) != 2 {
			return KillCommand{}, false
		}
		name := fields[1]
		if !isBareName(name) {
			return KillCommand{}, false
		}
		cmd.Target = KillTarget{User: name, byUser: true}
		return cmd, true
	}
	if len(fields) != 1 {
		return KillCommand{}, false
	}
	id, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return KillCommand{}, false
	}
	cmd.Target = KillTarget{ID: id}
	return cmd, true
}

// IsKillPrefix does the case-insensitive prefix match spec section 4.A
// calls for when classifying a COM_QUERY as textual KILL.
func IsKillPrefix(query string) bool {
	f := strings.Fields(strings.TrimSpace(query))
	return len(f) > 0 && strings.EqualFold(f[0], "KILL")
}

func isBareName(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if !(c == '_' || c == '.' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')) {
			return false
		}
	}
	return true
}
