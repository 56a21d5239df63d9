package sqlite_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"artmarket_chat/internal/domain"
	"artmarket_chat/internal/store/sqlite"
)

type repos struct {
	db    *sql.DB
	users *sqlite.UserRepo
	convs *sqlite.ConversationRepo
	msgs  *sqlite.MessageRepo
}

func setupRepos(t *testing.T) repos {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "nested", "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, sqlite.Migrate(db))
	return repos{
		db:    db,
		users: sqlite.NewUserRepo(db),
		convs: sqlite.NewConversationRepo(db),
		msgs:  sqlite.NewMessageRepo(db),
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	r := setupRepos(t)
	require.NoError(t, sqlite.Migrate(r.db))
}

func TestUserRepoUpsert(t *testing.T) {
	r := setupRepos(t)
	ctx := context.Background()

	require.NoError(t, r.users.Upsert(ctx, &domain.User{ID: "u1", Name: "Ada"}))
	require.NoError(t, r.users.Upsert(ctx, &domain.User{ID: "u1", Name: "Ada L.", Avatar: "a.png"}))

	u, err := r.users.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, &domain.User{ID: "u1", Name: "Ada L.", Avatar: "a.png"}, u)

	_, err = r.users.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetOrCreateDirect(t *testing.T) {
	r := setupRepos(t)
	ctx := context.Background()

	first, created, err := r.convs.GetOrCreateDirect(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, [2]string{"alice", "bob"}, first.Participants)
	assert.Equal(t, map[string]int{"alice": 0, "bob": 0}, first.UnreadCount)
	assert.Nil(t, first.LastMessage)

	second, created, err := r.convs.GetOrCreateDirect(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	byID, err := r.convs.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Participants, byID.Participants)

	_, err = r.convs.GetByID(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetOrCreateDirectWithSeparatorInIDs(t *testing.T) {
	r := setupRepos(t)
	ctx := context.Background()

	first, created, err := r.convs.GetOrCreateDirect(ctx, "a:b", "c")
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := r.convs.GetOrCreateDirect(ctx, "b:c", "a")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, [2]string{"a", "b:c"}, second.Participants)
}

func TestGetOrCreateDirectChecksParticipants(t *testing.T) {
	r := setupRepos(t)
	ctx := context.Background()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO conversations (id, pair_key, last_seq, created_at, updated_at)
		VALUES ('stale', ?, 0, 0, 0)`, domain.PairKey("alice", "bob"))
	require.NoError(t, err)
	for _, uid := range []string{"alice", "mallory"} {
		_, err = r.db.ExecContext(ctx, `
			INSERT INTO conversation_participants (conversation_id, user_id) VALUES ('stale', ?)`, uid)
		require.NoError(t, err)
	}

	conv, _, err := r.convs.GetOrCreateDirect(ctx, "alice", "bob")
	assert.Error(t, err)
	assert.Nil(t, conv)
}

func TestAppendAndMarkAllRead(t *testing.T) {
	r := setupRepos(t)
	ctx := context.Background()

	conv, _, err := r.convs.GetOrCreateDirect(ctx, "alice", "bob")
	require.NoError(t, err)

	for i, content := range []string{"one", "two", "three"} {
		m := &domain.Message{ConversationID: conv.ID, SenderID: "alice", Content: content}
		require.NoError(t, r.msgs.Append(ctx, m, "bob"))
		assert.Equal(t, int64(i+1), m.Seq)
		assert.NotEmpty(t, m.ID)
		assert.False(t, m.IsRead)
	}
	reply := &domain.Message{ConversationID: conv.ID, SenderID: "bob", Content: "hey"}
	require.NoError(t, r.msgs.Append(ctx, reply, "alice"))

	conv, err = r.convs.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, conv.UnreadCount["bob"])
	assert.Equal(t, 1, conv.UnreadCount["alice"])
	require.NotNil(t, conv.LastMessage)
	assert.Equal(t, "hey", conv.LastMessage.Content)
	assert.Equal(t, "bob", conv.LastMessage.SenderID)
	assert.Equal(t, reply.CreatedAt, conv.LastMessage.Timestamp)

	upTo, err := r.msgs.MarkAllRead(ctx, conv.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(4), upTo)

	conv, err = r.convs.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, conv.UnreadCount["bob"])
	assert.Equal(t, 1, conv.UnreadCount["alice"])

	msgs, err := r.msgs.ListForConversation(ctx, conv.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	for _, m := range msgs {
		// bob's own reply stays unread until alice reads it
		assert.Equal(t, m.SenderID == "alice", m.IsRead, "seq %d", m.Seq)
	}
}

func TestAppendRejectsUnknownRecipient(t *testing.T) {
	r := setupRepos(t)
	ctx := context.Background()

	conv, _, err := r.convs.GetOrCreateDirect(ctx, "alice", "bob")
	require.NoError(t, err)

	err = r.msgs.Append(ctx, &domain.Message{ConversationID: conv.ID, SenderID: "alice", Content: "x"}, "carol")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	msgs, err := r.msgs.ListForConversation(ctx, conv.ID, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs, "failed append must not leave a row behind")

	err = r.msgs.Append(ctx, &domain.Message{ConversationID: "missing", SenderID: "alice", Content: "x"}, "bob")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMarkAllReadErrors(t *testing.T) {
	r := setupRepos(t)
	ctx := context.Background()

	conv, _, err := r.convs.GetOrCreateDirect(ctx, "alice", "bob")
	require.NoError(t, err)

	_, err = r.msgs.MarkAllRead(ctx, conv.ID, "mallory")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = r.msgs.MarkAllRead(ctx, "missing", "alice")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListForConversationPaging(t *testing.T) {
	r := setupRepos(t)
	ctx := context.Background()

	conv, _, err := r.convs.GetOrCreateDirect(ctx, "alice", "bob")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, r.msgs.Append(ctx, &domain.Message{ConversationID: conv.ID, SenderID: "alice", Content: "m"}, "bob"))
	}

	page, err := r.msgs.ListForConversation(ctx, conv.ID, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, []int64{5, 4}, []int64{page[0].Seq, page[1].Seq})

	older, err := r.msgs.ListForConversation(ctx, conv.ID, 4, 10)
	require.NoError(t, err)
	require.Len(t, older, 3)
	assert.Equal(t, int64(3), older[0].Seq)
	assert.Equal(t, int64(1), older[2].Seq)
}

func TestSearch(t *testing.T) {
	r := setupRepos(t)
	ctx := context.Background()

	conv, _, err := r.convs.GetOrCreateDirect(ctx, "alice", "bob")
	require.NoError(t, err)
	other, _, err := r.convs.GetOrCreateDirect(ctx, "alice", "carol")
	require.NoError(t, err)
	require.NoError(t, r.users.Upsert(ctx, &domain.User{ID: "carol", Name: "Carol Painter"}))

	for _, c := range []string{"Is the Canvas still available?", "yes", "great, the canvas is lovely"} {
		require.NoError(t, r.msgs.Append(ctx, &domain.Message{ConversationID: conv.ID, SenderID: "alice", Content: c}, "bob"))
	}
	require.NoError(t, r.msgs.Append(ctx, &domain.Message{ConversationID: other.ID, SenderID: "carol", Content: "canvas"}, "alice"))

	hits, err := r.msgs.Search(ctx, conv.ID, "CANVAS", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "great, the canvas is lovely", hits[0].Content)
	assert.Equal(t, "Is the Canvas still available?", hits[1].Content)

	byName, err := r.convs.SearchForUser(ctx, "alice", "painter")
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, other.ID, byName[0].ID)
	assert.Equal(t, "Carol Painter", byName[0].Peer.Name)

	byContent, err := r.convs.SearchForUser(ctx, "alice", "canvas")
	require.NoError(t, err)
	assert.Len(t, byContent, 2)

	none, err := r.convs.SearchForUser(ctx, "bob", "painter")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSearchFoldsNonASCIICase(t *testing.T) {
	r := setupRepos(t)
	ctx := context.Background()

	conv, _, err := r.convs.GetOrCreateDirect(ctx, "alice", "emile")
	require.NoError(t, err)
	require.NoError(t, r.users.Upsert(ctx, &domain.User{ID: "emile", Name: "Émile Øster"}))
	require.NoError(t, r.msgs.Append(ctx, &domain.Message{ConversationID: conv.ID, SenderID: "alice", Content: "ÉTUDE in blue"}, "emile"))
	require.NoError(t, r.msgs.Append(ctx, &domain.Message{ConversationID: conv.ID, SenderID: "alice", Content: "etude without accent"}, "emile"))

	hits, err := r.msgs.Search(ctx, conv.ID, "étude", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "ÉTUDE in blue", hits[0].Content)

	byName, err := r.convs.SearchForUser(ctx, "alice", "émile ø")
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, conv.ID, byName[0].ID)

	byContent, err := r.convs.SearchForUser(ctx, "emile", "Étude")
	require.NoError(t, err)
	assert.Len(t, byContent, 1)
}

func TestListForUserOrdering(t *testing.T) {
	r := setupRepos(t)
	ctx := context.Background()

	older, _, err := r.convs.GetOrCreateDirect(ctx, "alice", "bob")
	require.NoError(t, err)
	newer, _, err := r.convs.GetOrCreateDirect(ctx, "alice", "carol")
	require.NoError(t, err)
	empty, _, err := r.convs.GetOrCreateDirect(ctx, "alice", "dave")
	require.NoError(t, err)

	require.NoError(t, r.msgs.Append(ctx, &domain.Message{ConversationID: older.ID, SenderID: "bob", Content: "first"}, "alice"))
	require.NoError(t, r.msgs.Append(ctx, &domain.Message{ConversationID: newer.ID, SenderID: "carol", Content: "second"}, "alice"))

	list, err := r.convs.ListForUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{newer.ID, older.ID, empty.ID}, []string{list[0].ID, list[1].ID, list[2].ID})
	assert.Equal(t, "carol", list[0].Peer.ID)
	assert.Equal(t, 1, list[0].UnreadCount)
	assert.Nil(t, list[2].LastMessage)

	bobs, err := r.convs.ListForUser(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, bobs, 1)
	assert.Equal(t, "alice", bobs[0].Peer.ID)
	assert.Equal(t, 0, bobs[0].UnreadCount)
}
