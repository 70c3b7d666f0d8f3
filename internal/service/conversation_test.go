package service

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/streamchat/internal/domain"
)

func TestListConversationsHidesDeleted(t *testing.T) {
	svc, _ := newTestService(t, newScriptedBackend("ok"))
	ctx := context.Background()

	svc.RunTurn(ctx, domain.NewConversation(), "one", &recordingSink{})
	svc.RunTurn(ctx, domain.NewConversation(), "two", &recordingSink{})

	convs, err := svc.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	require.Equal(t, "two", convs[0].Title)

	require.NoError(t, svc.DeleteConversation(ctx, convs[0].ID))

	convs, err = svc.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	require.Equal(t, "one", convs[0].Title)
}

func TestDeleteConversationCascadesToMessages(t *testing.T) {
	svc, st := newTestService(t, newScriptedBackend("ok"))
	ctx := context.Background()

	svc.RunTurn(ctx, domain.NewConversation(), "hello", &recordingSink{})
	id := allConversations(t, st)[0].ID

	require.NoError(t, svc.DeleteConversation(ctx, id))

	live, err := st.ListMessages(ctx, id, true)
	require.NoError(t, err)
	require.Empty(t, live)
	require.Len(t, allMessages(t, st, id), 2, "rows are kept, only flagged")

	_, err = svc.History(ctx, id)
	require.True(t, errors.Is(err, domain.ErrNotFound))

	err = svc.DeleteConversation(ctx, id)
	require.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestRenameConversation(t *testing.T) {
	svc, st := newTestService(t, newScriptedBackend("ok"))
	ctx := context.Background()

	svc.RunTurn(ctx, domain.NewConversation(), "hello", &recordingSink{})
	before := allConversations(t, st)[0]

	conv, err := svc.RenameConversation(ctx, before.ID, "  Greetings  ")
	require.NoError(t, err)
	require.Equal(t, "Greetings", conv.Title)
	require.True(t, conv.UpdatedAt.After(before.UpdatedAt))

	_, err = svc.RenameConversation(ctx, before.ID, "   ")
	require.True(t, errors.Is(err, domain.ErrInvalidInput))

	_, err = svc.RenameConversation(ctx, 404, "x")
	require.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestHistoryIsOrdered(t *testing.T) {
	svc, st := newTestService(t, newScriptedBackend("a", "b"))
	ctx := context.Background()

	svc.RunTurn(ctx, domain.NewConversation(), "q1", &recordingSink{})
	id := allConversations(t, st)[0].ID
	svc.RunTurn(ctx, domain.ExistingConversation(id), "q2", &recordingSink{})

	msgs, err := svc.History(ctx, id)
	require.NoError(t, err)
	var contents []string
	for _, m := range msgs {
		contents = append(contents, m.Content)
	}
	require.Equal(t, []string{"q1", "ab", "q2", "ab"}, contents)
}

func TestTitle(t *testing.T) {
	cases := map[string]string{
		"Hello":                             "Hello",
		"  Hello  ":                         "Hello",
		"123456789012345678901234567890":    "123456789012345678901234567890",
		"1234567890123456789012345678901":   "123456789012345678901234567890...",
		"你好你好你好你好你好你好你好你好你好你好你好你好你好你好你好你好": "你好你好你好你好你好你好你好你好你好你好你好你好你好你好你好...",
	}
	for in, want := range cases {
		require.Equal(t, want, Title(in), "input %q", in)
	}
}

func TestKeyedMutexReleasesEntries(t *testing.T) {
	k := newKeyedMutex()
	unlockA := k.lock(1)
	unlockB := k.lock(2)
	require.Equal(t, 2, k.size())
	unlockA()
	unlockB()
	require.Zero(t, k.size())
}
