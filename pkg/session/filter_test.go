package session

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

type upperFilter struct{ closed bool }

func (f *upperFilter) Capabilities() Capability { return 0 }
func (f *upperFilter) Name() string              { return "upper" }
func (f *upperFilter) NewSession(s *ClientSession) FilterSession {
	return &upperFilterSession{f: f}
}

type upperFilterSession struct{ f *upperFilter }

func (s *upperFilterSession) RouteQuery(buf []byte) ([]byte, bool) {
	return bytes.ToUpper(buf), true
}
func (s *upperFilterSession) ClientReply(buf []byte) ([]byte, bool) { return buf, true }
func (s *upperFilterSession) Close()                                { s.f.closed = true }

type blockFilter struct{}

func (f *blockFilter) Capabilities() Capability { return 0 }
func (f *blockFilter) Name() string              { return "block" }
func (f *blockFilter) NewSession(s *ClientSession) FilterSession {
	return &blockFilterSession{}
}

type blockFilterSession struct{}

func (s *blockFilterSession) RouteQuery(buf []byte) ([]byte, bool)   { return buf, false }
func (s *blockFilterSession) ClientReply(buf []byte) ([]byte, bool) { return buf, true }
func (s *blockFilterSession) Close()                                {}

func TestChainRewritesInOrder(t *testing.T) {
	uf := &upperFilter{}
	chain := NewChain(nil, []Filter{uf})
	out, ok := chain.RouteQuery([]byte("select 1"))
	require.True(t, ok)
	require.Equal(t, []byte("SELECT 1"), out)

	chain.Close()
	require.True(t, uf.closed)
}

func TestChainShortCircuitsOnBlock(t *testing.T) {
	chain := NewChain(nil, []Filter{&blockFilter{}, &upperFilter{}})
	_, ok := chain.RouteQuery([]byte("select 1"))
	require.False(t, ok)
}
