package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pairshare/pairshare/internal/audit"
	"github.com/pairshare/pairshare/internal/sessions"
)

func TestTwoPartyScenario(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, "AB3F9")

	code, err := env.engine.CreateSession(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, "AB3F9", code)
	assert.Equal(t, []EventType{EventSessionCreated}, env.notes.types("c1"))

	file := env.blobs.upload(t, "photo.jpg", "jpeg")
	env.notes.reset()

	// lower-case input is normalized
	require.NoError(t, env.engine.Join(ctx, "ab3f9", "c2"))

	c2 := env.notes.of("c2")
	require.Len(t, c2, 3)
	assert.Equal(t, EventSessionJoined, c2[0].Type)
	assert.Equal(t, SessionPayload{Code: "AB3F9"}, c2[0].Data)
	assert.Equal(t, EventMessageHistory, c2[1].Type)
	assert.Empty(t, c2[1].Data)
	assert.Equal(t, EventFileHistory, c2[2].Type)
	assert.Empty(t, c2[2].Data)

	c1 := env.notes.of("c1")
	require.Len(t, c1, 1)
	assert.Equal(t, EventPeerJoined, c1[0].Type)
	assert.True(t, c1[0].System)
	assert.Equal(t, PeerPayload{ID: "c2"}, c1[0].Data)

	env.notes.reset()
	msg, err := env.engine.SendMessage(ctx, code, "c1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "01.03.2024, 12:30", msg.FormattedDate)

	for _, conn := range []sessions.ConnectionID{"c1", "c2"} {
		events := env.notes.of(conn)
		require.Len(t, events, 1, conn)
		assert.Equal(t, EventNewMessage, events[0].Type)
		got := events[0].Data.(sessions.Message)
		assert.Equal(t, "hello", got.Text)
		assert.Equal(t, sessions.ConnectionID("c1"), got.Sender)
		assert.NotEmpty(t, got.FormattedDate)
	}

	_, err = env.engine.AnnounceFile(ctx, code, "c2", file)
	require.NoError(t, err)

	env.notes.reset()
	env.engine.Leave(ctx, "c2")
	c1 = env.notes.of("c1")
	require.Len(t, c1, 1)
	assert.Equal(t, EventPeerLeft, c1[0].Type)
	assert.Equal(t, PeerPayload{ID: "c2"}, c1[0].Data)

	env.engine.Leave(ctx, "c1")
	_, err = env.store.Get(ctx, code)
	assert.ErrorIs(t, err, sessions.ErrSessionNotFound)
	assert.False(t, env.blobs.has(file.Filename))
	assert.Equal(t, 1, env.blobs.deleteCount(file.Filename))

	assert.ErrorIs(t, env.engine.Join(ctx, code, "c3"), sessions.ErrSessionNotFound)
}

func TestJoinCapacity(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	code, err := env.engine.CreateSession(ctx, "c1")
	require.NoError(t, err)
	require.NoError(t, env.engine.Join(ctx, code, "c2"))

	err = env.engine.Join(ctx, code, "c3")
	require.Error(t, err)
	assert.True(t, errors.Is(err, sessions.ErrSessionFull))

	session, err := env.store.Get(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, []sessions.ConnectionID{"c1", "c2"}, session.Members)

	// the rejected connection is free to join elsewhere
	_, ok := env.engine.SessionOf("c3")
	assert.False(t, ok)
	_, err = env.engine.CreateSession(ctx, "c3")
	assert.NoError(t, err)
}

func TestConcurrentJoinsNeverExceedCapacity(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	code, err := env.engine.CreateSession(ctx, "creator")
	require.NoError(t, err)

	const joiners = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		full      int
	)
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func(conn sessions.ConnectionID) {
			defer wg.Done()
			err := env.engine.Join(ctx, code, conn)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, sessions.ErrSessionFull):
				full++
			}
		}(sessions.ConnectionID(fmt.Sprintf("joiner-%d", i)))
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, joiners-1, full)

	session, err := env.store.Get(ctx, code)
	require.NoError(t, err)
	assert.Len(t, session.Members, sessions.MaxMembers)
}

func TestJoinUnknownSession(t *testing.T) {
	env := newTestEnv(t)

	err := env.engine.Join(context.Background(), "ZZZZZ", "c1")
	assert.ErrorIs(t, err, sessions.ErrSessionNotFound)
	assert.Empty(t, env.notes.types("c1"))

	_, ok := env.engine.SessionOf("c1")
	assert.False(t, ok)
}

func TestAlreadyJoined(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	first, err := env.engine.CreateSession(ctx, "c1")
	require.NoError(t, err)
	second, err := env.engine.CreateSession(ctx, "c2")
	require.NoError(t, err)

	assert.ErrorIs(t, env.engine.Join(ctx, second, "c1"), ErrAlreadyJoined)
	_, err = env.engine.CreateSession(ctx, "c1")
	assert.ErrorIs(t, err, ErrAlreadyJoined)

	code, ok := env.engine.SessionOf("c1")
	assert.True(t, ok)
	assert.Equal(t, first, code)
}

func TestReplayThenLiveHasNoGapsOrDuplicates(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	code, err := env.engine.CreateSession(ctx, "c1")
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		_, err := env.engine.SendMessage(ctx, code, "c1", "before")
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_, _ = env.engine.SendMessage(ctx, code, "c1", "during")
		}
	}()
	require.NoError(t, env.engine.Join(ctx, code, "c2"))
	wg.Wait()

	var seen []string
	for _, event := range env.notes.of("c2") {
		switch event.Type {
		case EventMessageHistory:
			for _, msg := range event.Data.([]sessions.Message) {
				seen = append(seen, msg.ID)
			}
		case EventNewMessage:
			seen = append(seen, event.Data.(sessions.Message).ID)
		}
	}

	session, err := env.store.Get(ctx, code)
	require.NoError(t, err)
	require.Len(t, session.Messages, 60)

	var want []string
	for _, msg := range session.Messages {
		want = append(want, msg.ID)
	}
	assert.Equal(t, want, seen)
}

func TestSendMessageValidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	code, err := env.engine.CreateSession(ctx, "c1")
	require.NoError(t, err)

	tests := []struct {
		name string
		code string
		conn sessions.ConnectionID
		text string
		want error
	}{
		{"empty", code, "c1", "   ", ErrEmptyMessage},
		{"too long", code, "c1", strings.Repeat("я", DefaultMaxMessageLength+1), ErrMessageTooLong},
		{"not a member", code, "c9", "hi", ErrNotMember},
		{"unknown session", "ZZZZZ", "c1", "hi", sessions.ErrSessionNotFound},
		{"blank to unknown session", "ZZZZZ", "c1", "  ", sessions.ErrSessionNotFound},
		{"blank from non-member", code, "c9", "", ErrNotMember},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.engine.SendMessage(ctx, tt.code, tt.conn, tt.text)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err = env.engine.SendMessage(ctx, code, "c1", strings.Repeat("я", DefaultMaxMessageLength))
	assert.NoError(t, err)
}

func TestSendMessageRefreshesActivity(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	code, err := env.engine.CreateSession(ctx, "c1")
	require.NoError(t, err)

	env.clock.Advance(DefaultIdleTimeout - 1)
	_, err = env.engine.SendMessage(ctx, code, "c1", "still here")
	require.NoError(t, err)

	session, err := env.store.Get(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, env.clock.Now(), session.LastActivity)
}

func TestAnnounceFile(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	code, err := env.engine.CreateSession(ctx, "c1")
	require.NoError(t, err)
	require.NoError(t, env.engine.Join(ctx, code, "c2"))
	env.notes.reset()

	meta := env.blobs.upload(t, "Отчёт.pdf", "pdf")
	rec, err := env.engine.AnnounceFile(ctx, code, "c1", meta)
	require.NoError(t, err)
	assert.Equal(t, meta.Filename, rec.Filename)
	assert.Equal(t, int64(3), rec.Size)
	assert.NotEmpty(t, rec.FormattedDate)

	for _, conn := range []sessions.ConnectionID{"c1", "c2"} {
		events := env.notes.of(conn)
		require.Len(t, events, 1)
		assert.Equal(t, EventNewFile, events[0].Type)
		assert.Equal(t, rec, events[0].Data)
	}

	_, err = env.engine.AnnounceFile(ctx, code, "c1", sessions.FileMeta{Filename: "../../etc/passwd"})
	assert.ErrorIs(t, err, ErrInvalidFile)

	_, err = env.engine.AnnounceFile(ctx, code, "c1", sessions.FileMeta{Filename: "1700000000000-0a1b2c3d-ghost.txt"})
	assert.ErrorIs(t, err, ErrInvalidFile)

	_, err = env.engine.AnnounceFile(ctx, code, "c9", meta)
	assert.ErrorIs(t, err, ErrNotMember)

	// late joiners see the file in their replay
	env.engine.Leave(ctx, "c2")
	env.notes.reset()
	require.NoError(t, env.engine.Join(ctx, code, "c3"))
	events := env.notes.of("c3")
	require.Len(t, events, 3)
	assert.Equal(t, []sessions.FileRecord{rec}, events[2].Data)
}

func TestAnnounceFileOwnedByAnotherSession(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	owner, err := env.engine.CreateSession(ctx, "c1")
	require.NoError(t, err)
	other, err := env.engine.CreateSession(ctx, "c3")
	require.NoError(t, err)

	meta := env.blobs.upload(t, "secret.pdf", "pdf")
	_, err = env.engine.AnnounceFile(ctx, owner, "c1", meta)
	require.NoError(t, err)

	// re-announcing within the owning session is still allowed
	_, err = env.engine.AnnounceFile(ctx, owner, "c1", meta)
	require.NoError(t, err)

	_, err = env.engine.AnnounceFile(ctx, other, "c3", meta)
	assert.ErrorIs(t, err, ErrInvalidFile)

	env.engine.Leave(ctx, "c3")
	_, err = env.store.Get(ctx, other)
	assert.ErrorIs(t, err, sessions.ErrSessionNotFound)

	session, err := env.store.Get(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, session.Files, 2)
	assert.True(t, env.blobs.has(meta.Filename))
	assert.Equal(t, 0, env.blobs.deleteCount(meta.Filename))

	// the name is free again once the owner is gone
	env.engine.Leave(ctx, "c1")
	assert.False(t, env.blobs.has(meta.Filename))
	_, err = env.engine.claimFile(meta.Filename, "QQQQQ")
	assert.NoError(t, err)
}

func TestAnnounceFileReleasesClaimOnFailure(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	code, err := env.engine.CreateSession(ctx, "c1")
	require.NoError(t, err)
	meta := env.blobs.upload(t, "a.txt", "a")

	_, err = env.engine.AnnounceFile(ctx, "ZZZZZ", "c1", meta)
	assert.ErrorIs(t, err, sessions.ErrSessionNotFound)

	_, err = env.engine.AnnounceFile(ctx, code, "c1", meta)
	assert.NoError(t, err)
}

func TestLeaveUnknownConnectionIsNoop(t *testing.T) {
	env := newTestEnv(t)
	env.engine.Leave(context.Background(), "ghost")
	assert.Equal(t, 0, env.engine.SessionCount())
}

func TestLeaveIgnoresCancelledContext(t *testing.T) {
	env := newTestEnv(t)

	code, err := env.engine.CreateSession(context.Background(), "c1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	env.engine.Leave(ctx, "c1")

	_, err = env.store.Get(context.Background(), code)
	assert.ErrorIs(t, err, sessions.ErrSessionNotFound)
}

func TestBroadcastSkipsClosedChannels(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	code, err := env.engine.CreateSession(ctx, "c1")
	require.NoError(t, err)
	require.NoError(t, env.engine.Join(ctx, code, "c2"))

	env.notes.close("c2")
	env.notes.reset()

	_, err = env.engine.SendMessage(ctx, code, "c1", "anyone?")
	require.NoError(t, err)
	assert.Equal(t, []EventType{EventNewMessage}, env.notes.types("c1"))
}

func TestEndSession(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	code, err := env.engine.CreateSession(ctx, "c1")
	require.NoError(t, err)
	require.NoError(t, env.engine.Join(ctx, code, "c2"))
	file := env.blobs.upload(t, "a.txt", "a")
	_, err = env.engine.AnnounceFile(ctx, code, "c1", file)
	require.NoError(t, err)
	env.notes.reset()

	require.NoError(t, env.engine.EndSession(ctx, code))

	for _, conn := range []sessions.ConnectionID{"c1", "c2"} {
		assert.Equal(t, []EventType{EventSessionEnded}, env.notes.types(conn))
		_, ok := env.engine.SessionOf(conn)
		assert.False(t, ok)
	}
	assert.False(t, env.blobs.has(file.Filename))
	assert.ErrorIs(t, env.engine.EndSession(ctx, code), sessions.ErrSessionNotFound)

	// members that disconnect afterwards are a no-op
	env.engine.Leave(ctx, "c1")
}

func TestAuditTrail(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	code, err := env.engine.CreateSession(ctx, "c1")
	require.NoError(t, err)
	require.NoError(t, env.engine.Join(ctx, code, "c2"))
	_, err = env.engine.SendMessage(ctx, code, "c2", "secret")
	require.NoError(t, err)
	file := env.blobs.upload(t, "a.txt", "abc")
	_, err = env.engine.AnnounceFile(ctx, code, "c1", file)
	require.NoError(t, err)
	env.engine.Leave(ctx, "c2")
	env.engine.Leave(ctx, "c1")

	events, err := env.engine.SessionEvents(ctx, code, 0)
	require.NoError(t, err)

	var types []audit.EventType
	details := make(map[audit.EventType]map[string]interface{})
	for i := len(events) - 1; i >= 0; i-- {
		types = append(types, events[i].Type)
		if events[i].Details != nil {
			details[events[i].Type] = events[i].Details
		}
	}
	assert.Equal(t, []audit.EventType{
		audit.EventSessionCreated,
		audit.EventMemberJoined,
		audit.EventMessageSent,
		audit.EventFileAnnounced,
		audit.EventMemberLeft,
		audit.EventMemberLeft,
		audit.EventSessionClosed,
	}, types)

	assert.Equal(t, map[string]interface{}{"length": 6}, details[audit.EventMessageSent])
	assert.Equal(t, map[string]interface{}{"size": int64(3)}, details[audit.EventFileAnnounced])
	assert.Equal(t, map[string]interface{}{"messages": 1, "files": 1}, details[audit.EventSessionClosed])
}

func TestReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{sessions.NewSessionNotFoundError("AB3F9"), "Session not found or has expired"},
		{sessions.NewSessionFullError("AB3F9"), "Session is already full"},
		{ErrAlreadyJoined, "You are already in a session"},
		{tooLong(5), "Message is too long"},
		{errors.New("disk on fire"), "Internal server error"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Reason(tt.err))
	}
}
