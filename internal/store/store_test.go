package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/torvik-dev/parley/internal/session"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleSession(t *testing.T, id string) session.Session {
	t.Helper()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	sess := session.Session{ID: id, CreatedAt: base, UpdatedAt: base}

	msgs := []session.Message{
		{Role: session.RoleUser, Content: "what is 6*7?", CreatedAt: base},
		{
			Role:        session.RoleAssistant,
			ToolRequest: &session.ToolRequest{Name: "calculate", Arguments: map[string]any{"expression": "6*7"}},
			CreatedAt:   base.Add(time.Second),
		},
		{Role: session.RoleTool, ToolName: "calculate", Content: "tool calculate result: 42", CreatedAt: base.Add(2 * time.Second)},
		{Role: session.RoleAssistant, Content: "The answer is 42.", CreatedAt: base.Add(3 * time.Second)},
	}
	for _, m := range msgs {
		var err error
		sess, err = sess.Append(m)
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	var err error
	sess, err = sess.AppendInvocation(session.ToolInvocation{
		ID:          "inv-1",
		ToolName:    "calculate",
		Arguments:   map[string]any{"expression": "6*7"},
		Status:      session.StatusSuccess,
		Result:      42.0,
		RequestedAt: base.Add(time.Second),
	})
	if err != nil {
		t.Fatalf("append invocation: %v", err)
	}
	return sess
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := openTestStore(t)
	sess := sampleSession(t, "round-trip")

	if err := s.SaveSession(sess); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := s.LoadSession("round-trip")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if loaded.ID != sess.ID {
		t.Errorf("ID = %q", loaded.ID)
	}
	if len(loaded.Messages) != len(sess.Messages) {
		t.Fatalf("loaded %d messages, want %d", len(loaded.Messages), len(sess.Messages))
	}
	if loaded.Messages[0].Content != "what is 6*7?" {
		t.Errorf("first message content = %q", loaded.Messages[0].Content)
	}
	tr := loaded.Messages[1].ToolRequest
	if tr == nil || tr.Name != "calculate" || tr.Arguments["expression"] != "6*7" {
		t.Errorf("tool request = %+v", tr)
	}
	if loaded.Messages[2].ToolName != "calculate" {
		t.Errorf("tool message name = %q", loaded.Messages[2].ToolName)
	}

	if len(loaded.Invocations) != 1 {
		t.Fatalf("loaded %d invocations, want 1", len(loaded.Invocations))
	}
	inv := loaded.Invocations[0]
	if inv.Status != session.StatusSuccess || inv.Result != 42.0 {
		t.Errorf("invocation = %+v", inv)
	}
}

func TestSaveSessionLastWins(t *testing.T) {
	s := openTestStore(t)
	sess := sampleSession(t, "overwrite")
	if err := s.SaveSession(sess); err != nil {
		t.Fatalf("first save: %v", err)
	}

	longer, err := sess.Append(session.Message{
		Role: session.RoleUser, Content: "and 7*8?", CreatedAt: sess.UpdatedAt.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.SaveSession(longer); err != nil {
		t.Fatalf("second save: %v", err)
	}

	loaded, err := s.LoadSession("overwrite")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Messages) != len(longer.Messages) {
		t.Errorf("loaded %d messages, want %d", len(loaded.Messages), len(longer.Messages))
	}
}

func TestLoadSessionNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.LoadSession("nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLoadMostRecentSession(t *testing.T) {
	s := openTestStore(t)

	got, err := s.LoadMostRecentSession()
	if err != nil {
		t.Fatalf("empty store: %v", err)
	}
	if got != nil {
		t.Fatalf("empty store returned %+v, want nil", got)
	}

	older := sampleSession(t, "older")
	newer := sampleSession(t, "newer")
	newer.UpdatedAt = older.UpdatedAt.Add(time.Hour)
	if err := s.SaveSession(older); err != nil {
		t.Fatalf("save older: %v", err)
	}
	if err := s.SaveSession(newer); err != nil {
		t.Fatalf("save newer: %v", err)
	}

	got, err = s.LoadMostRecentSession()
	if err != nil {
		t.Fatalf("load recent: %v", err)
	}
	if got == nil || got.ID != "newer" {
		t.Errorf("recent session = %+v, want newer", got)
	}
}

func TestListSessions(t *testing.T) {
	s := openTestStore(t)
	for _, id := range []string{"a", "b", "c"} {
		if err := s.SaveSession(sampleSession(t, id)); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	all, err := s.ListSessions(0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("listed %d sessions, want 3", len(all))
	}
	if all[0].MessageCount != 4 {
		t.Errorf("MessageCount = %d, want 4", all[0].MessageCount)
	}

	limited, err := s.ListSessions(2)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("listed %d sessions, want 2", len(limited))
	}
}

func TestDeleteSession(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveSession(sampleSession(t, "doomed")); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := s.DeleteSession("doomed"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.LoadSession("doomed"); !errors.Is(err, ErrNotFound) {
		t.Errorf("load after delete: %v", err)
	}

	st, err := s.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Messages != 0 || st.Invocations != 0 {
		t.Errorf("cascade left rows behind: %+v", st)
	}

	if err := s.DeleteSession("doomed"); !errors.Is(err, ErrNotFound) {
		t.Errorf("double delete: %v", err)
	}
}

func TestSearchMessages(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveSession(sampleSession(t, "s1")); err != nil {
		t.Fatalf("save s1: %v", err)
	}
	if err := s.SaveSession(sampleSession(t, "s2")); err != nil {
		t.Fatalf("save s2: %v", err)
	}

	hits, err := s.SearchMessages("answer is 42", "", 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("%d hits across sessions, want 2", len(hits))
	}

	hits, err = s.SearchMessages("answer is 42", "s1", 0)
	if err != nil {
		t.Fatalf("scoped search: %v", err)
	}
	if len(hits) != 1 || hits[0].SessionID != "s1" {
		t.Errorf("scoped hits = %+v", hits)
	}

	hits, err = s.SearchMessages("no such text", "", 0)
	if err != nil {
		t.Fatalf("miss search: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("%d hits, want 0", len(hits))
	}
}

func TestStats(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveSession(sampleSession(t, "stats")); err != nil {
		t.Fatalf("save: %v", err)
	}

	st, err := s.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Sessions != 1 || st.Messages != 4 || st.Invocations != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestBackup(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveSession(sampleSession(t, "backup-me")); err != nil {
		t.Fatalf("save: %v", err)
	}

	dst := filepath.Join(t.TempDir(), "backup.db")
	if err := s.Backup(dst); err != nil {
		t.Fatalf("backup: %v", err)
	}

	restored, err := Open(dst)
	if err != nil {
		t.Fatalf("open backup: %v", err)
	}
	defer restored.Close()

	loaded, err := restored.LoadSession("backup-me")
	if err != nil {
		t.Fatalf("load from backup: %v", err)
	}
	if len(loaded.Messages) != 4 {
		t.Errorf("backup has %d messages, want 4", len(loaded.Messages))
	}
}
