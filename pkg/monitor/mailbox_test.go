package monitor

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestMailboxPollRunsPostedCommand(t *testing.T) {
	mb := NewMailbox(nil)
	done := make(chan struct{})
	var result interface{}
	var resultErr error
	var gotID uuid.UUID

	go func() {
		v, id, err := mb.Post(func() (interface{}, error) { return "ok", nil })
		result, gotID, resultErr = v, id, err
		close(done)
	}()

	require.Eventually(t, func() bool {
		mb.Poll()
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, time.Second, time.Millisecond)

	require.NoError(t, resultErr)
	require.Equal(t, "ok", result)
	require.NotEqual(t, uuid.Nil, gotID)
}

func TestMailboxPollIsNonBlockingWhenEmpty(t *testing.T) {
	mb := NewMailbox(nil)
	mb.Poll() // must not block or panic
}

func TestMailboxPropagatesError(t *testing.T) {
	mb := NewMailbox(nil)
	wantErr := errors.New("boom")
	done := make(chan struct{})
	var gotErr error

	go func() {
		_, _, err := mb.Post(func() (interface{}, error) { return nil, wantErr })
		gotErr = err
		close(done)
	}()

	require.Eventually(t, func() bool {
		mb.Poll()
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, time.Second, time.Millisecond)

	require.Equal(t, wantErr, gotErr)
}
