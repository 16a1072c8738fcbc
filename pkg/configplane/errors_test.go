package configplane

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAccumulatorDrainsCollectedErrors(t *testing.T) {
	acc := NewAccumulator(nil)
	require.True(t, acc.Empty())

	acc.Add(errors.New("first problem"))
	acc.Add(errConfig("second problem: %s", "detail"))
	require.False(t, acc.Empty())

	doc := acc.Drain()
	require.Len(t, doc.Errors, 2)
	require.True(t, acc.Empty())
	require.Nil(t, acc.Drain())
}

func TestAccumulatorAddNilIsNoop(t *testing.T) {
	acc := NewAccumulator(nil)
	acc.Add(nil)
	require.True(t, acc.Empty())
}
