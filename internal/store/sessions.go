package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/torvik-dev/parley/internal/session"
)

// SessionSummary is a listing row: enough to pick a session without
// loading its messages.
type SessionSummary struct {
	ID           string
	MessageCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SearchHit is one message matched by SearchMessages.
type SearchHit struct {
	SessionID string
	Role      string
	Content   string
	CreatedAt time.Time
}

// SaveSession persists the full session value. Last save wins: the
// previous rows for this id are replaced wholesale, which matches the
// value-semantics log where every turn yields a complete new session.
func (s *Store) SaveSession(sess session.Session) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO sessions (id, created_at, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at`,
		sess.ID, sess.CreatedAt.UTC(), sess.UpdatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM messages WHERE session_id = ?`, sess.ID); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM tool_invocations WHERE session_id = ?`, sess.ID); err != nil {
		return fmt.Errorf("clear invocations: %w", err)
	}

	for i, m := range sess.Messages {
		var toolRequest any
		if m.ToolRequest != nil {
			encoded, err := json.Marshal(m.ToolRequest)
			if err != nil {
				return fmt.Errorf("encode tool request: %w", err)
			}
			toolRequest = string(encoded)
		}
		if _, err := tx.Exec(
			`INSERT INTO messages (session_id, position, role, content, tool_name, tool_request, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			sess.ID, i, m.Role, m.Content, m.ToolName, toolRequest, m.CreatedAt.UTC(),
		); err != nil {
			return fmt.Errorf("insert message %d: %w", i, err)
		}
	}

	for i, inv := range sess.Invocations {
		args, err := json.Marshal(inv.Arguments)
		if err != nil {
			return fmt.Errorf("encode arguments: %w", err)
		}
		var result any
		if inv.Result != nil {
			encoded, err := json.Marshal(inv.Result)
			if err != nil {
				return fmt.Errorf("encode result: %w", err)
			}
			result = string(encoded)
		}
		if _, err := tx.Exec(
			`INSERT INTO tool_invocations (id, session_id, position, tool_name, arguments, status, result, error, requested_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			inv.ID, sess.ID, i, inv.ToolName, string(args), inv.Status, result, inv.Error, inv.RequestedAt.UTC(),
		); err != nil {
			return fmt.Errorf("insert invocation %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// LoadSession reconstructs the session for id, or ErrNotFound.
func (s *Store) LoadSession(id string) (session.Session, error) {
	var sess session.Session
	err := s.db.QueryRow(
		`SELECT id, created_at, updated_at FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Session{}, fmt.Errorf("load %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return session.Session{}, fmt.Errorf("load session: %w", err)
	}

	if err := s.loadMessages(&sess); err != nil {
		return session.Session{}, err
	}
	if err := s.loadInvocations(&sess); err != nil {
		return session.Session{}, err
	}
	return sess, nil
}

// LoadMostRecentSession returns the last-touched session, or nil when the
// store is empty.
func (s *Store) LoadMostRecentSession() (*session.Session, error) {
	var id string
	err := s.db.QueryRow(
		`SELECT id FROM sessions ORDER BY updated_at DESC, id LIMIT 1`,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find recent session: %w", err)
	}
	sess, err := s.LoadSession(id)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// ListSessions returns summaries newest-first, at most limit rows
// (limit <= 0 means no bound).
func (s *Store) ListSessions(limit int) ([]SessionSummary, error) {
	q := `SELECT s.id, COUNT(m.id), s.created_at, s.updated_at
	      FROM sessions s LEFT JOIN messages m ON m.session_id = s.id
	      GROUP BY s.id ORDER BY s.updated_at DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var sum SessionSummary
		if err := rows.Scan(&sum.ID, &sum.MessageCount, &sum.CreatedAt, &sum.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// DeleteSession removes the session and, via FK cascade, its rows.
func (s *Store) DeleteSession(id string) error {
	res, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete %s: %w", id, ErrNotFound)
	}
	return nil
}

// SearchMessages finds messages whose content contains query. sessionID
// narrows the search to one session when non-empty.
func (s *Store) SearchMessages(query, sessionID string, limit int) ([]SearchHit, error) {
	q := `SELECT session_id, role, content, created_at FROM messages
	      WHERE content LIKE ?`
	args := []any{"%" + query + "%"}
	if sessionID != "" {
		q += ` AND session_id = ?`
		args = append(args, sessionID)
	}
	q += ` ORDER BY created_at DESC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	defer rows.Close()

	var out []SearchHit
	for rows.Next() {
		var hit SearchHit
		if err := rows.Scan(&hit.SessionID, &hit.Role, &hit.Content, &hit.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		out = append(out, hit)
	}
	return out, rows.Err()
}

func (s *Store) loadMessages(sess *session.Session) error {
	rows, err := s.db.Query(
		`SELECT role, content, tool_name, tool_request, created_at
		 FROM messages WHERE session_id = ? ORDER BY position`, sess.ID,
	)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m session.Message
		var toolRequest sql.NullString
		if err := rows.Scan(&m.Role, &m.Content, &m.ToolName, &toolRequest, &m.CreatedAt); err != nil {
			return fmt.Errorf("scan message: %w", err)
		}
		if toolRequest.Valid {
			var tr session.ToolRequest
			if err := json.Unmarshal([]byte(toolRequest.String), &tr); err != nil {
				return fmt.Errorf("decode tool request: %w", err)
			}
			m.ToolRequest = &tr
		}
		sess.Messages = append(sess.Messages, m)
	}
	return rows.Err()
}

func (s *Store) loadInvocations(sess *session.Session) error {
	rows, err := s.db.Query(
		`SELECT id, tool_name, arguments, status, result, error, requested_at
		 FROM tool_invocations WHERE session_id = ? ORDER BY position`, sess.ID,
	)
	if err != nil {
		return fmt.Errorf("load invocations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var inv session.ToolInvocation
		var args, result sql.NullString
		if err := rows.Scan(&inv.ID, &inv.ToolName, &args, &inv.Status, &result, &inv.Error, &inv.RequestedAt); err != nil {
			return fmt.Errorf("scan invocation: %w", err)
		}
		if args.Valid && args.String != "" && args.String != "null" {
			if err := json.Unmarshal([]byte(args.String), &inv.Arguments); err != nil {
				return fmt.Errorf("decode arguments: %w", err)
			}
		}
		if result.Valid {
			if err := json.Unmarshal([]byte(result.String), &inv.Result); err != nil {
				return fmt.Errorf("decode result: %w", err)
			}
		}
		sess.Invocations = append(sess.Invocations, inv)
	}
	return rows.Err()
}
