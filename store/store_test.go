package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	st, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st, err = Open(path)
	require.NoError(t, err)
	require.NoError(t, st.Close())
}

func TestSubjectLifecycle(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.InsertSubject(ctx, "ann", "itns-a"))

	sub, err := st.GetSubject(ctx, "ann")
	require.NoError(t, err)
	assert.Equal(t, "itns-a", sub.Namespace)
	assert.False(t, sub.Onboarded)

	require.NoError(t, st.SetOnboarded(ctx, "ann"))
	sub, err = st.GetSubject(ctx, "ann")
	require.NoError(t, err)
	assert.True(t, sub.Onboarded)

	_, err = st.GetSubject(ctx, "nobody")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestInsertSubjectCollides(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.InsertSubject(ctx, "ann", "itns-a"))
	assert.Error(t, st.InsertSubject(ctx, "ann", "itns-a"), "strict insert must fail on collision")
	assert.NoError(t, st.EnsureSubject(ctx, "ann", "itns-a"), "ensure must tolerate an existing row")
}

func TestAppendMessageSequencesPerSubject(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.InsertSubject(ctx, "ann", "itns-a"))
	require.NoError(t, st.InsertSubject(ctx, "bob", "itns-a"))

	seq, err := st.AppendMessage(ctx, uuid.NewString(), "ann", "itns-a", "in", "first")
	require.NoError(t, err)
	assert.Equal(t, 1, seq)

	seq, err = st.AppendMessage(ctx, uuid.NewString(), "ann", "itns-a", "out", "second")
	require.NoError(t, err)
	assert.Equal(t, 2, seq)

	// Numbering is per subject, not global.
	seq, err = st.AppendMessage(ctx, uuid.NewString(), "bob", "itns-a", "in", "hello")
	require.NoError(t, err)
	assert.Equal(t, 1, seq)

	msgs, err := st.ListMessages(ctx, "ann")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Body)
	assert.Equal(t, "in", msgs[0].Direction)
	assert.Equal(t, "second", msgs[1].Body)
}

func TestDeleteSubjectRemovesChildrenFirst(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.InsertSubject(ctx, "ann", "itns-a"))
	require.NoError(t, st.AppendSession(ctx, uuid.NewString(), "ann", "itns-a"))
	_, err := st.AppendMessage(ctx, uuid.NewString(), "ann", "itns-a", "in", "hi")
	require.NoError(t, err)

	require.NoError(t, st.DeleteSubject(ctx, "ann"))

	_, err = st.GetSubject(ctx, "ann")
	assert.True(t, errors.Is(err, ErrNotFound))
	msgs, err := st.ListMessages(ctx, "ann")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestNamespaceCountAndDelete(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.InsertSubject(ctx, "ann", "itns-a"))
	require.NoError(t, st.InsertSubject(ctx, "bob", "itns-b"))
	_, err := st.AppendMessage(ctx, uuid.NewString(), "ann", "itns-a", "in", "hi")
	require.NoError(t, err)

	n, err := st.CountByNamespace(ctx, "subjects", "itns-a")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	deleted, err := st.DeleteByNamespace(ctx, "messages", "itns-a")
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	deleted, err = st.DeleteByNamespace(ctx, "subjects", "itns-a")
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	// The other namespace is untouched.
	n, err = st.CountByNamespace(ctx, "subjects", "itns-b")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUnknownTableIsRejected(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	_, err := st.CountByNamespace(ctx, "users; DROP TABLE subjects", "itns-a")
	assert.Error(t, err)
	_, err = st.DeleteByNamespace(ctx, "nope", "itns-a")
	assert.Error(t, err)
}
