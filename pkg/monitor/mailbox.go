package monitor

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Command is a function an admin thread wants the monitor's own
// goroutine to run at the top of its next poll tick, per spec section
// 4.G's manual command channel.
type Command func() (interface{}, error)

type commandEnvelope struct {
	id     uuid.UUID // correlates this command's admin-log lines across Post and Poll
	fn     Command
	result chan commandResult
}

type commandResult struct {
	value interface{}
	err   error
}

// Mailbox is the single-slot mailbox between an admin thread and the
// monitor loop described in spec section 4.G and named again in spec
// section 9's design notes ("typed command enum + two-channel pair"): a
// buffered channel of capacity 1 carries the posted command; the caller
// blocks on a dedicated result channel embedded in the same envelope.
type Mailbox struct {
	slot chan commandEnvelope
	log  *zap.Logger
}

// NewMailbox returns an empty single-slot mailbox. log may be nil, in
// which case posted commands run silently.
func NewMailbox(log *zap.Logger) *Mailbox {
	if log == nil {
		log = zap.NewNop()
	}
	return &Mailbox{slot: make(chan commandEnvelope, 1), log: log}
}

// Post submits fn to the monitor loop and blocks until it has run,
// returning its result and the correlation id assigned to this command,
// so the caller's own admin-channel response can cite the same id the
// monitor's log lines use.
func (m *Mailbox) Post(fn Command) (interface{}, uuid.UUID, error) {
	id := uuid.New()
	result := make(chan commandResult, 1)
	m.log.Info("monitor command posted", zap.String("command_id", id.String()))
	m.slot <- commandEnvelope{id: id, fn: fn, result: result}
	r := <-result
	return r.value, id, r.err
}

// Poll is called by the monitor loop at the top of each tick; it runs at
// most one pending command and publishes its result, per spec section
// 4.G. It never blocks when the mailbox is empty.
func (m *Mailbox) Poll() {
	select {
	case env := <-m.slot:
		v, err := env.fn()
		if err != nil {
			m.log.Warn("monitor command failed", zap.String("command_id", env.id.String()), zap.Error(err))
		} else {
			m.log.Info("monitor command completed", zap.String("command_id", env.id.String()))
		}
		env.result <- commandResult{value: v, err: err}
	default:
	}
}
