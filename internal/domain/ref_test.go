package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRefFromNullable(t *testing.T) {
	_, ok := RefFromNullable(nil).Existing()
	require.False(t, ok)

	id := int64(42)
	got, ok := RefFromNullable(&id).Existing()
	require.True(t, ok)
	require.Equal(t, int64(42), got)
	require.Equal(t, "42", RefFromNullable(&id).String())
	require.Equal(t, "new", NewConversation().String())
}

func TestStreamEventTerminal(t *testing.T) {
	require.False(t, ChunkEvent("hi").Terminal())
	require.True(t, DoneEvent().Terminal())
	require.True(t, ErrorEvent("boom").Terminal())
}
