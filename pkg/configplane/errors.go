package configplane

import (
	"fmt"
	"sync"

	"github.com/lishubing/sqlgate/pkg/wireerr"
	"github.com/sirupsen/logrus"
)

func errConfig(format string, args ...interface{}) *wireerr.Error {
	return wireerr.New(wireerr.ConfigValidation, 0, "", "configplane", fmt.Sprintf(format, args...))
}

// Accumulator is the per-thread human-readable error buffer spec section
// 7 requires for the admin channel ("Per-thread error-accumulator
// buffers collect human-readable messages for the admin channel; they
// never feed the wire path"), grounded on the teacher-pack's
// percona-pxc_scheduler_handler logrus setup (src/global/log.go) but
// kept as a small per-call buffer rather than a process-global logger,
// since each config-plane call needs its own isolated error list to
// turn into a JSON:API errors array.
type Accumulator struct {
	mu      sync.Mutex
	log     *logrus.Logger
	entries []APIError
}

// NewAccumulator returns an accumulator that also mirrors every
// collected message to log at Warn level, so operators following the
// admin log see the same failures the JSON:API response carries.
func NewAccumulator(log *logrus.Logger) *Accumulator {
	if log == nil {
		log = logrus.New()
	}
	return &Accumulator{log: log}
}

func (a *Accumulator) Add(err error) {
	if err == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, APIError{Detail: err.Error()})
	a.log.WithField("component", "configplane").Warn(err.Error())
}

func (a *Accumulator) Empty() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries) == 0
}

// Drain returns the accumulated errors as a JSON:API document and clears
// the buffer.
func (a *Accumulator) Drain() *ErrorsDocument {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.entries) == 0 {
		return nil
	}
	doc := &ErrorsDocument{Errors: a.entries}
	a.entries = nil
	return doc
}
