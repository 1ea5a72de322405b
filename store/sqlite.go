package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/marcinbunsch/overseer-sub001/domain"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Appends from live delivery and catch-up queries interleave; a single
	// connection serializes them at the driver level.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS conversation_events (
			conversation_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			payload TEXT NOT NULL,
			PRIMARY KEY (conversation_id, seq)
		)`,
		`CREATE TABLE IF NOT EXISTS conversation_meta (
			conversation_id TEXT PRIMARY KEY,
			project TEXT NOT NULL,
			workspace TEXT,
			label TEXT,
			agent_kind TEXT,
			session_id TEXT,
			model TEXT,
			permission_mode TEXT,
			done INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS approvals (
			project TEXT NOT NULL,
			kind TEXT NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (project, kind, value)
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// AppendEvent stores an event under the next sequence number for the
// conversation and returns the assigned seq.
func (s *SQLiteStore) AppendEvent(ctx context.Context, conversationID string, event *domain.Event) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM conversation_events WHERE conversation_id = ?`,
		conversationID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to assign seq: %w", err)
	}

	event.Seq = &seq
	payload, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO conversation_events (conversation_id, seq, payload) VALUES (?, ?, ?)`,
		conversationID, seq, string(payload))
	if err != nil {
		return 0, fmt.Errorf("failed to insert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit event: %w", err)
	}
	return seq, nil
}

// LoadEvents returns the full event log for a conversation.
func (s *SQLiteStore) LoadEvents(ctx context.Context, conversationID string) ([]domain.Event, error) {
	return s.LoadEventsSince(ctx, conversationID, 0)
}

// LoadEventsSince returns events with seq > sinceSeq in ascending order.
func (s *SQLiteStore) LoadEventsSince(ctx context.Context, conversationID string, sinceSeq int64) ([]domain.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM conversation_events WHERE conversation_id = ? AND seq > ? ORDER BY seq ASC`,
		conversationID, sinceSeq)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var event domain.Event
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// SaveMeta inserts or updates conversation metadata.
func (s *SQLiteStore) SaveMeta(ctx context.Context, meta *domain.ConversationMeta) error {
	done := 0
	if meta.Done {
		done = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation_meta (conversation_id, project, workspace, label, agent_kind, session_id, model, permission_mode, done, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(conversation_id) DO UPDATE SET
			project = excluded.project,
			workspace = excluded.workspace,
			label = excluded.label,
			agent_kind = excluded.agent_kind,
			session_id = excluded.session_id,
			model = excluded.model,
			permission_mode = excluded.permission_mode,
			done = excluded.done`,
		meta.ConversationID, meta.Project, meta.Workspace, meta.Label, meta.AgentKind,
		meta.SessionID, meta.Model, meta.PermissionMode, done, meta.CreatedAt)
	return err
}

// GetMeta retrieves conversation metadata, or nil when the conversation
// is unknown.
func (s *SQLiteStore) GetMeta(ctx context.Context, conversationID string) (*domain.ConversationMeta, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT conversation_id, project, workspace, label, agent_kind, session_id, model, permission_mode, done, created_at
		 FROM conversation_meta WHERE conversation_id = ?`,
		conversationID)

	meta, err := scanMeta(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return meta, nil
}

// ListMeta lists metadata for all conversations.
func (s *SQLiteStore) ListMeta(ctx context.Context) ([]domain.ConversationMeta, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT conversation_id, project, workspace, label, agent_kind, session_id, model, permission_mode, done, created_at
		 FROM conversation_meta ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var metas []domain.ConversationMeta
	for rows.Next() {
		meta, err := scanMeta(rows)
		if err != nil {
			return nil, err
		}
		metas = append(metas, *meta)
	}
	return metas, rows.Err()
}

// scanner abstracts sql.Row and sql.Rows for scanMeta.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMeta(row scanner) (*domain.ConversationMeta, error) {
	var meta domain.ConversationMeta
	var workspace, label, agentKind, sessionID, model, permissionMode sql.NullString
	var done int
	err := row.Scan(&meta.ConversationID, &meta.Project, &workspace, &label, &agentKind,
		&sessionID, &model, &permissionMode, &done, &meta.CreatedAt)
	if err != nil {
		return nil, err
	}
	meta.Workspace = workspace.String
	meta.Label = label.String
	meta.AgentKind = agentKind.String
	meta.SessionID = sessionID.String
	meta.Model = model.String
	meta.PermissionMode = permissionMode.String
	meta.Done = done != 0
	return &meta, nil
}

// LoadApprovalSet returns the approved tool names and command prefixes
// for a project.
func (s *SQLiteStore) LoadApprovalSet(ctx context.Context, project string) ([]string, []string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, value FROM approvals WHERE project = ?`, project)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var tools, prefixes []string
	for rows.Next() {
		var kind, value string
		if err := rows.Scan(&kind, &value); err != nil {
			return nil, nil, err
		}
		switch kind {
		case "tool":
			tools = append(tools, value)
		case "prefix":
			prefixes = append(prefixes, value)
		}
	}
	return tools, prefixes, rows.Err()
}

// AddApprovedTool persists a tool name approval.
func (s *SQLiteStore) AddApprovedTool(ctx context.Context, project, tool string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO approvals (project, kind, value) VALUES (?, 'tool', ?)`,
		project, tool)
	return err
}

// AddApprovedPrefixes persists command prefix approvals.
func (s *SQLiteStore) AddApprovedPrefixes(ctx context.Context, project string, prefixes []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, prefix := range prefixes {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO approvals (project, kind, value) VALUES (?, 'prefix', ?)`,
			project, prefix); err != nil {
			return err
		}
	}
	return tx.Commit()
}
