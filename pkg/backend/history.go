// Package backend implements component B: one backend session per
// (client-session, backend-server) pair, the session-command history every
// backend must replay, and the expected-response bookkeeping routers use
// to serialize replies back to the client in request order.
package backend

// SessionCommand is an immutable packet carrying a server-visible
// state-changing statement, per spec section 3. Position is monotonically
// increasing within one client session.
type SessionCommand struct {
	Position uint64
	Payload  []byte
	Kind     CommandKind
	// CompressKey identifies the logical state a USE/SET command sets;
	// a later command with the same CompressKey supersedes an earlier one
	// during compression. Empty means "never compress".
	CompressKey string
}

type CommandKind int

const (
	KindOther CommandKind = iota
	KindUse
	KindSetVar
	KindCharset
	KindPrepare
)

// History is the ordered, monotonically-positioned session-command log
// shared by every backend session within one client session, per spec
// section 3 and section 4.B.
type History struct {
	commands []SessionCommand
	nextPos  uint64
	disabled bool // disable_sescmd_history
}

func NewHistory() *History { return &History{nextPos: 1} }

// DisableHistory implements disable_sescmd_history: once set, no new
// backend may be acquired mid-session (enforced by callers checking
// Disabled()); the history itself keeps recording so existing backends
// stay consistent.
func (h *History) DisableHistory() { h.disabled = true }
func (h *History) Disabled() bool  { return h.disabled }

// Append records a new session command, assigning it the next position.
func (h *History) Append(payload []byte, kind CommandKind, compressKey string) SessionCommand {
	cmd := SessionCommand{Position: h.nextPos, Payload: payload, Kind: kind, CompressKey: compressKey}
	h.nextPos++
	if compressKey != "" {
		h.compress(cmd)
	} else {
		h.commands = append(h.commands, cmd)
	}
	return cmd
}

// compress drops any earlier command with the same CompressKey and appends
// the new command at its (latest) position, so replay ordering relative to
// uncompressed commands is preserved, per spec section 4.B.
func (h *History) compress(cmd SessionCommand) {
	for i, c := range h.commands {
		if c.CompressKey == cmd.CompressKey {
			h.commands = append(h.commands[:i], h.commands[i+1:]...)
			break
		}
	}
	h.commands = append(h.commands, cmd)
}

// Since returns every command with Position > pos, in order, for a backend
// replaying forward from pos.
func (h *History) Since(pos uint64) []SessionCommand {
	out := make([]SessionCommand, 0, len(h.commands))
	for _, c := range h.commands {
		if c.Position > pos {
			out = append(out, c)
		}
	}
	return out
}

// Len is the number of commands currently retained (post-compression).
func (h *History) Len() int { return len(h.commands) }

// NextPosition is the position the next Append call will use.
func (h *History) NextPosition() uint64 { return h.nextPos }
