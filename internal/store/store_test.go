package store

import (
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	dbPath := t.TempDir() + "/test.db"
	s, err := Open(dbPath, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	return s
}

func strPtr(s string) *string { return &s }

func TestOpen_MigratesFreshDatabase(t *testing.T) {
	s := newTestStore(t)

	v, err := currentSchemaVersion(s.db)
	if err != nil {
		t.Fatal(err)
	}
	if v != len(migrations) {
		t.Fatalf("expected schema_version %d, got %d", len(migrations), v)
	}
}

func TestOpen_IsIdempotent(t *testing.T) {
	dbPath := t.TempDir() + "/test.db"

	s1, err := Open(dbPath, nil)
	if err != nil {
		t.Fatal(err)
	}
	s1.Close()

	// Reopening an already-migrated database must not fail even though
	// every CREATE TABLE IF NOT EXISTS and the v2 ALTER TABLE have
	// already run once.
	s2, err := Open(dbPath, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
}

func TestSaveMessage_DedupByID(t *testing.T) {
	s := newTestStore(t)

	if err := s.EnsureThread("thread-1", nil, false); err != nil {
		t.Fatal(err)
	}

	m := Message{ID: "msg-1", ThreadID: "thread-1", SenderID: "user-1", Text: strPtr("hello"), TimestampMs: 1000}
	if err := s.SaveMessage(m); err != nil {
		t.Fatal(err)
	}
	// Insert the same id again with different content: must be a no-op,
	// not an error, and must not duplicate the row (spec.md §4.3
	// invariant: a message id appears at most once).
	m2 := m
	m2.Text = strPtr("different text")
	if err := s.SaveMessage(m2); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetMessages("thread-1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 message after duplicate insert, got %d", len(got))
	}
	if got[0].Text == nil || *got[0].Text != "hello" {
		t.Fatalf("expected original text to survive duplicate insert, got %v", got[0].Text)
	}
}

func TestGetMessages_NewestFirst(t *testing.T) {
	s := newTestStore(t)
	if err := s.EnsureThread("thread-1", nil, false); err != nil {
		t.Fatal(err)
	}

	for i, ts := range []int64{100, 300, 200} {
		m := Message{ID: "msg-" + string(rune('a'+i)), ThreadID: "thread-1", SenderID: "user-1", TimestampMs: ts}
		if err := s.SaveMessage(m); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.GetMessages("thread-1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got))
	}
	for i := 0; i < len(got)-1; i++ {
		if got[i].TimestampMs < got[i+1].TimestampMs {
			t.Fatalf("messages not newest-first: %v", got)
		}
	}
}

func TestEnsureThread_CreatesWithDefaults(t *testing.T) {
	s := newTestStore(t)

	if err := s.EnsureThread("thread-1", strPtr("General"), true); err != nil {
		t.Fatal(err)
	}

	th, err := s.GetThread("thread-1")
	if err != nil {
		t.Fatal(err)
	}
	if th == nil {
		t.Fatal("expected thread to exist")
	}
	if th.Prefix != "!" {
		t.Errorf("expected default prefix '!', got %q", th.Prefix)
	}
	if th.Language != "vi" {
		t.Errorf("expected default language 'vi', got %q", th.Language)
	}
	if !th.Enabled {
		t.Error("expected thread enabled by default")
	}
	if !th.IsGroup {
		t.Error("expected is_group to be set from first insert")
	}
}

func TestEnsureThread_SecondCallDoesNotResetIsGroup(t *testing.T) {
	s := newTestStore(t)

	if err := s.EnsureThread("thread-1", nil, true); err != nil {
		t.Fatal(err)
	}
	if err := s.EnsureThread("thread-1", nil, false); err != nil {
		t.Fatal(err)
	}

	th, err := s.GetThread("thread-1")
	if err != nil {
		t.Fatal(err)
	}
	if !th.IsGroup {
		t.Error("expected is_group from the original insert to be preserved")
	}
}

func TestGetThread_UnknownReturnsNil(t *testing.T) {
	s := newTestStore(t)

	th, err := s.GetThread("nope")
	if err != nil {
		t.Fatal(err)
	}
	if th != nil {
		t.Fatalf("expected nil for unknown thread, got %+v", th)
	}
}

func TestSetThreadPrefixAndEnabled(t *testing.T) {
	s := newTestStore(t)
	if err := s.EnsureThread("thread-1", nil, false); err != nil {
		t.Fatal(err)
	}

	if err := s.SetThreadPrefix("thread-1", "/"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetThreadEnabled("thread-1", false); err != nil {
		t.Fatal(err)
	}

	th, err := s.GetThread("thread-1")
	if err != nil {
		t.Fatal(err)
	}
	if th.Prefix != "/" {
		t.Errorf("expected prefix '/', got %q", th.Prefix)
	}
	if th.Enabled {
		t.Error("expected thread disabled")
	}
}

func TestListThreads_OrderedByUpdatedDesc(t *testing.T) {
	s := newTestStore(t)
	if err := s.EnsureThread("t1", nil, false); err != nil {
		t.Fatal(err)
	}
	if err := s.EnsureThread("t2", nil, false); err != nil {
		t.Fatal(err)
	}
	// Touch t1 again so it becomes most recently updated.
	if err := s.TouchThread("t1"); err != nil {
		t.Fatal(err)
	}

	threads, err := s.ListThreads(10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(threads) != 2 {
		t.Fatalf("expected 2 threads, got %d", len(threads))
	}
	if threads[0].ID != "t1" {
		t.Errorf("expected most recently touched thread first, got %s", threads[0].ID)
	}
}

func TestEnsureUser_AndBlockLifecycle(t *testing.T) {
	s := newTestStore(t)

	if err := s.EnsureUser("user-1", strPtr("Alice")); err != nil {
		t.Fatal(err)
	}

	blocked, err := s.IsBlocked("user-1")
	if err != nil {
		t.Fatal(err)
	}
	if blocked {
		t.Error("expected new user not blocked")
	}

	if err := s.SetBlocked("user-1", true); err != nil {
		t.Fatal(err)
	}
	blocked, err = s.IsBlocked("user-1")
	if err != nil {
		t.Fatal(err)
	}
	if !blocked {
		t.Error("expected user blocked after SetBlocked(true)")
	}
}

func TestIsBlocked_UnknownUserIsFalse(t *testing.T) {
	s := newTestStore(t)

	blocked, err := s.IsBlocked("ghost")
	if err != nil {
		t.Fatal(err)
	}
	if blocked {
		t.Error("expected unknown user to not be blocked")
	}
}

func TestSetAdmin(t *testing.T) {
	s := newTestStore(t)
	if err := s.EnsureUser("user-1", nil); err != nil {
		t.Fatal(err)
	}

	if err := s.SetAdmin("user-1", true); err != nil {
		t.Fatal(err)
	}

	u, err := s.GetUser("user-1")
	if err != nil {
		t.Fatal(err)
	}
	if !u.IsAdmin {
		t.Error("expected user to be admin")
	}
}

func TestSettings_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	v, err := s.GetSetting("missing")
	if err != nil {
		t.Fatal(err)
	}
	if v != nil {
		t.Fatalf("expected nil for unset key, got %v", *v)
	}

	if err := s.SetSetting("greeting", "hello"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetSetting("greeting", "updated"); err != nil {
		t.Fatal(err)
	}

	v, err = s.GetSetting("greeting")
	if err != nil {
		t.Fatal(err)
	}
	if v == nil || *v != "updated" {
		t.Fatalf("expected 'updated', got %v", v)
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(t)

	if err := s.EnsureThread("t1", nil, false); err != nil {
		t.Fatal(err)
	}
	if err := s.EnsureUser("u1", nil); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveMessage(Message{ID: "m1", ThreadID: "t1", SenderID: "u1", TimestampMs: 1}); err != nil {
		t.Fatal(err)
	}

	st, err := s.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if st.Messages != 1 || st.Threads != 1 || st.Users != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestRunMaintenanceOnce_PrunesOldMessages(t *testing.T) {
	s := newTestStore(t)
	if err := s.EnsureThread("t1", nil, false); err != nil {
		t.Fatal(err)
	}

	// An ancient message (timestamp 1 ms after the epoch) should be
	// pruned by the retention sweep; a recent one should survive.
	if err := s.SaveMessage(Message{ID: "old", ThreadID: "t1", SenderID: "u1", TimestampMs: 1}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveMessage(Message{ID: "new", ThreadID: "t1", SenderID: "u1", TimestampMs: time.Now().UnixMilli()}); err != nil {
		t.Fatal(err)
	}

	s.runMaintenanceOnce()

	got, err := s.GetMessages("t1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "new" {
		t.Fatalf("expected only the recent message to survive retention, got %+v", got)
	}
}
