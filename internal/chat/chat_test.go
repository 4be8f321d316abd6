package chat

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"harmonika/internal/models"
	"harmonika/internal/sessions"
	"harmonika/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeTimer struct {
	delay   time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// fakeScheduler collects timers; Fire runs the ones still pending.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) Schedule(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{delay: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) Fire() {
	s.mu.Lock()
	var due []*fakeTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			t.fired = true
			due = append(due, t)
		}
	}
	s.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

type staticReplies string

func (r staticReplies) AutoReplyText(context.Context) string {
	return string(r)
}

type testEngine struct {
	*Engine
	store storage.Store
	clock *fakeClock
	sched *fakeScheduler
}

func newTestEngine(t *testing.T, replies ReplyProvider) *testEngine {
	t.Helper()
	store := storage.NewMemoryStorage()
	clock := &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
	sched := &fakeScheduler{}

	e := New(Config{
		Repository: sessions.NewRepository(store, nil),
		Replies:    replies,
	})
	e.now = clock.Now
	e.schedule = sched.Schedule

	seq := 0
	e.newID = func() string {
		seq++
		return fmt.Sprintf("id-%04d", seq)
	}
	return &testEngine{Engine: e, store: store, clock: clock, sched: sched}
}

func TestStartSession(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil)

	s, err := e.StartSession(ctx, "Budi", "HMK-12345")
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "Budi", s.UserName)
	assert.Equal(t, "HMK-12345", s.CustomerID)
	assert.Empty(t, s.Messages)
	assert.Zero(t, s.UnreadCount)

	all, err := e.Repository.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, s, all[0])

	require.Len(t, e.sched.timers, 1)
	assert.Equal(t, DefaultWelcomeDelay, e.sched.timers[0].delay)
}

func TestStartSession_RejectsEmptyName(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil)

	for _, name := range []string{"", "   ", "\t\n"} {
		_, err := e.StartSession(ctx, name, "")
		var verr *models.ValidationError
		require.ErrorAs(t, err, &verr, "name %q", name)
		assert.Equal(t, "userName", verr.Field)
	}

	all, err := e.Repository.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Empty(t, e.sched.timers)
}

func TestStartSession_WelcomeMessage(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil)

	s, err := e.StartSession(ctx, "Budi", "")
	require.NoError(t, err)

	_, err = e.SendUserMessage(ctx, s.ID, models.MessageInput{Text: "Internet saya lambat"})
	require.NoError(t, err)

	e.clock.Advance(500 * time.Millisecond)
	e.sched.Fire()

	got, err := e.Session(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, models.SenderUser, got.Messages[0].Sender)
	assert.Equal(t, models.SenderAdmin, got.Messages[1].Sender)
	assert.Contains(t, got.Messages[1].Text, "Budi")
	assert.Zero(t, got.UnreadCount, "the welcome message clears unread")
}

func TestStartSession_PlainTextRoundTrip(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil)

	s, err := e.StartSession(ctx, "O'Brien", "HMK-1 & 2")
	require.NoError(t, err)
	assert.Equal(t, "O'Brien", s.UserName)
	assert.Equal(t, "HMK-1 & 2", s.CustomerID)

	e.sched.Fire()
	text := "Paket 20 & 50 Mbps, harga < 300rb?"
	_, err = e.SendUserMessage(ctx, s.ID, models.MessageInput{Text: text})
	require.NoError(t, err)

	got, err := e.Session(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, WelcomeText("O'Brien"), got.Messages[0].Text)
	assert.Contains(t, got.Messages[0].Text, "O'Brien")
	assert.Equal(t, text, got.Messages[1].Text)
}

func TestStartSession_WelcomeWithRealTimer(t *testing.T) {
	ctx := context.Background()
	e := New(Config{
		Repository:   sessions.NewRepository(storage.NewMemoryStorage(), nil),
		WelcomeDelay: 10 * time.Millisecond,
	})
	defer e.Close()

	s, err := e.StartSession(ctx, "Siti", "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := e.Session(ctx, s.ID)
		return err == nil && len(got.Messages) == 1
	}, time.Second, 5*time.Millisecond)

	got, err := e.Session(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, WelcomeText("Siti"), got.Messages[0].Text)
}

func TestCancelWelcome(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil)

	s1, err := e.StartSession(ctx, "Budi", "")
	require.NoError(t, err)
	s2, err := e.StartSession(ctx, "Siti", "")
	require.NoError(t, err)

	e.CancelWelcome(s1.ID)
	e.sched.Fire()

	got1, _ := e.Session(ctx, s1.ID)
	got2, _ := e.Session(ctx, s2.ID)
	assert.Empty(t, got1.Messages)
	assert.Len(t, got2.Messages, 1)

	s3, err := e.StartSession(ctx, "Andi", "")
	require.NoError(t, err)
	e.Close()
	e.sched.Fire()
	got3, _ := e.Session(ctx, s3.ID)
	assert.Empty(t, got3.Messages)
}

func TestUnreadCount(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil)
	s, err := e.StartSession(ctx, "Budi", "")
	require.NoError(t, err)

	type step struct {
		op   string
		want int
	}
	steps := []step{
		{"user", 1},
		{"user", 2},
		{"user", 3},
		{"read", 0},
		{"user", 1},
		{"admin", 0},
		{"admin", 0},
		{"user", 1},
		{"user", 2},
	}

	for i, st := range steps {
		switch st.op {
		case "user":
			_, err = e.SendUserMessage(ctx, s.ID, models.MessageInput{Text: fmt.Sprintf("pesan %d", i)})
		case "admin":
			_, err = e.SendAdminMessage(ctx, s.ID, models.MessageInput{Text: fmt.Sprintf("balasan %d", i)})
		case "read":
			_, err = e.MarkAsRead(ctx, s.ID)
		}
		require.NoError(t, err)

		got, err := e.Session(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, st.want, got.UnreadCount, "step %d (%s)", i, st.op)
	}
}

func TestSendMessage(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil)
	s, err := e.StartSession(ctx, "Budi", "")
	require.NoError(t, err)

	e.clock.Advance(time.Second)
	msg, err := e.SendUserMessage(ctx, s.ID, models.MessageInput{Text: "  halo  "})
	require.NoError(t, err)
	assert.Equal(t, "halo", msg.Text)
	assert.Equal(t, models.SenderUser, msg.Sender)
	assert.Equal(t, e.clock.Now().UnixMilli(), msg.Timestamp)
	assert.False(t, msg.IsAutoReply)

	got, err := e.Session(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, msg.Timestamp, got.LastUpdated)

	t.Run("EmptyText", func(t *testing.T) {
		_, err := e.SendUserMessage(ctx, s.ID, models.MessageInput{Text: " "})
		var verr *models.ValidationError
		assert.ErrorAs(t, err, &verr)
		_, err = e.SendAdminMessage(ctx, s.ID, models.MessageInput{Text: ""})
		assert.ErrorAs(t, err, &verr)
	})

	t.Run("UnknownSession", func(t *testing.T) {
		_, err := e.SendAdminMessage(ctx, "missing", models.MessageInput{Text: "halo"})
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("Attachment", func(t *testing.T) {
		msg, err := e.SendAdminMessage(ctx, s.ID, models.MessageInput{
			Text:           "Shared Location",
			AttachmentType: models.AttachmentTypeLocation,
			AttachmentURL:  "https://www.google.com/maps?q=-6.9,107.6",
		})
		require.NoError(t, err)
		assert.Equal(t, models.AttachmentTypeLocation, msg.AttachmentType)
	})

	t.Run("AdminCanMessageAnySession", func(t *testing.T) {
		other, err := e.StartSession(ctx, "Siti", "")
		require.NoError(t, err)
		_, err = e.SendAdminMessage(ctx, other.ID, models.MessageInput{Text: "halo Siti"})
		require.NoError(t, err)
	})
}

func TestClearSessionMessages(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil)
	s, err := e.StartSession(ctx, "Budi", "HMK-1")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := e.SendUserMessage(ctx, s.ID, models.MessageInput{Text: "halo"})
		require.NoError(t, err)
	}
	before, err := e.Session(ctx, s.ID)
	require.NoError(t, err)

	e.clock.Advance(time.Minute)
	cleared, err := e.ClearSessionMessages(ctx, s.ID)
	require.NoError(t, err)

	assert.NotNil(t, cleared.Messages)
	assert.Empty(t, cleared.Messages)
	assert.Greater(t, cleared.LastUpdated, before.LastUpdated)
	assert.Equal(t, s.ID, cleared.ID)
	assert.Equal(t, "Budi", cleared.UserName)
	assert.Equal(t, "HMK-1", cleared.CustomerID)
	assert.Zero(t, cleared.UnreadCount, "no stale unread count survives a clear")

	_, err = e.SendUserMessage(ctx, s.ID, models.MessageInput{Text: "masih ada?"})
	require.NoError(t, err)
	got, err := e.Session(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.UnreadCount)
}

func TestTyping(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil)
	s, err := e.StartSession(ctx, "Budi", "")
	require.NoError(t, err)

	got, _ := e.Session(ctx, s.ID)
	assert.False(t, e.IsTyping(got))

	require.NoError(t, e.NotifyTyping(ctx, s.ID))
	got, _ = e.Session(ctx, s.ID)
	assert.True(t, e.IsTyping(got))
	assert.Empty(t, got.Messages, "typing never touches history")

	e.clock.Advance(1999 * time.Millisecond)
	assert.True(t, e.IsTyping(got))
	e.clock.Advance(time.Millisecond)
	assert.False(t, e.IsTyping(got))

	assert.ErrorIs(t, e.NotifyTyping(ctx, "missing"), models.ErrNotFound)
}

func TestSessions_SortedByLastUpdated(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil)

	var ids []string
	for _, name := range []string{"Budi", "Siti", "Andi"} {
		s, err := e.StartSession(ctx, name, "")
		require.NoError(t, err)
		ids = append(ids, s.ID)
		e.clock.Advance(time.Second)
	}
	_, err := e.SendUserMessage(ctx, ids[0], models.MessageInput{Text: "halo"})
	require.NoError(t, err)

	all, err := e.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{ids[0], ids[2], ids[1]}, []string{all[0].ID, all[1].ID, all[2].ID})
	assert.Equal(t, 1, TotalUnread(all))
}

func TestNewID_OrderedAndUnique(t *testing.T) {
	const n = 1000
	ids := make([]string, n)
	seen := make(map[string]bool, n)
	for i := range ids {
		ids[i] = newID()
		require.False(t, seen[ids[i]], "duplicate id %s", ids[i])
		seen[ids[i]] = true
	}
	assert.True(t, slices.IsSorted(ids), "ids sort by creation order")
}

func TestConcurrentSenders(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil)
	e.newID = newID
	s, err := e.StartSession(ctx, "Budi", "")
	require.NoError(t, err)

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := e.SendUserMessage(ctx, s.ID, models.MessageInput{Text: "user"})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := e.SendAdminMessage(ctx, s.ID, models.MessageInput{Text: "admin"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := e.Session(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, got.Messages, 2*n, "no write is lost")
}
