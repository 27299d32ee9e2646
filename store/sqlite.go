package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/logging"
	_ "modernc.org/sqlite"
)

// SQLiteOptions configures the SQLite store.
type SQLiteOptions struct {
	Logger     logging.Logger
	MaxRetries int
}

// SQLite implements Store on a single SQLite database file.
type SQLite struct {
	db     *sql.DB
	logger logging.Logger
	opts   SQLiteOptions
}

// NewSQLite opens (creating if needed) the database at dbPath and applies the schema.
func NewSQLite(dbPath string, optFns ...func(o *SQLiteOptions)) (*SQLite, error) {
	opts := SQLiteOptions{
		Logger:     logging.NoOpLogger{},
		MaxRetries: 3,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL for concurrent readers; foreign keys must be enabled per connection.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLite{db: db, logger: opts.Logger, opts: opts}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLite) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE COLLATE NOCASE,
		model TEXT NOT NULL,
		effort TEXT NOT NULL,
		bootstrapped INTEGER NOT NULL DEFAULT 0,
		heartbeat_interval_ms INTEGER,
		show_heartbeat INTEGER NOT NULL DEFAULT 0,
		is_default INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		agent_id TEXT NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		tool_calls TEXT,
		kind TEXT NOT NULL DEFAULT 'chat',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_agent_kind ON messages(agent_id, kind, seq);

	CREATE TABLE IF NOT EXISTS sessions (
		agent_id TEXT PRIMARY KEY REFERENCES agents(id) ON DELETE CASCADE,
		session_id TEXT NOT NULL,
		prompt_hash TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS memories (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
		summary TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_memories_agent ON memories(agent_id, created_at);

	CREATE TABLE IF NOT EXISTS schedules (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
		description TEXT NOT NULL,
		interval_ms INTEGER NOT NULL,
		next_run_at INTEGER NOT NULL,
		last_run_at INTEGER,
		active INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_schedules_due ON schedules(next_run_at) WHERE active = 1;

	CREATE TABLE IF NOT EXISTS credentials (
		agent_id TEXT NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (agent_id, key)
	);

	CREATE TABLE IF NOT EXISTS config (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) exec(ctx context.Context, name, query string, args ...any) (sql.Result, error) {
	var result sql.Result

	err := withRetry(ctx, s.logger, name, s.opts.MaxRetries, func() error {
		var err error
		result, err = s.db.ExecContext(ctx, query, args...)
		return err
	})

	return result, err
}

func requireRow(result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// --- agents ---

const agentColumns = `id, name, model, effort, bootstrapped, heartbeat_interval_ms, show_heartbeat, is_default, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*core.Agent, error) {
	var (
		a                        core.Agent
		effort                   string
		bootstrapped, showHB, df int
		interval                 sql.NullInt64
		createdAt, updatedAt     int64
	)

	if err := row.Scan(&a.ID, &a.Name, &a.Model, &effort, &bootstrapped, &interval, &showHB, &df, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	a.Effort = core.ParseEffort(effort)
	a.Bootstrapped = bootstrapped == 1
	a.ShowHeartbeat = showHB == 1
	a.IsDefault = df == 1
	a.CreatedAt = fromMillis(createdAt)
	a.UpdatedAt = fromMillis(updatedAt)

	if interval.Valid {
		d := time.Duration(interval.Int64) * time.Millisecond
		a.HeartbeatInterval = &d
	}

	return &a, nil
}

func intervalMillis(d *time.Duration) any {
	if d == nil {
		return nil
	}
	return d.Milliseconds()
}

// CreateAgent inserts a new agent.
func (s *SQLite) CreateAgent(ctx context.Context, a *core.Agent) error {
	query := `INSERT INTO agents (` + agentColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.exec(ctx, "create agent", query,
		a.ID, a.Name, a.Model, string(a.Effort), boolInt(a.Bootstrapped), intervalMillis(a.HeartbeatInterval),
		boolInt(a.ShowHeartbeat), boolInt(a.IsDefault), a.CreatedAt.UnixMilli(), a.UpdatedAt.UnixMilli(),
	)
	if isUniqueViolation(err) {
		return core.ErrAgentExists
	}
	if err != nil {
		return fmt.Errorf("create agent: %w", err)
	}

	return nil
}

// GetAgent returns the agent or ErrUnknownAgent.
func (s *SQLite) GetAgent(ctx context.Context, id string) (*core.Agent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = ?`, id)

	a, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrUnknownAgent
	}
	if err != nil {
		return nil, fmt.Errorf("scan agent row: %w", err)
	}

	return a, nil
}

// GetAgentByName looks an agent up case-insensitively.
func (s *SQLite) GetAgentByName(ctx context.Context, name string) (*core.Agent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE name = ?`, name)

	a, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrUnknownAgent
	}
	if err != nil {
		return nil, fmt.Errorf("scan agent row: %w", err)
	}

	return a, nil
}

// ListAgents returns all agents, oldest first.
func (s *SQLite) ListAgents(ctx context.Context) ([]*core.Agent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+agentColumns+` FROM agents ORDER BY created_at, name`)
	if err != nil {
		return nil, fmt.Errorf("query agents: %w", err)
	}
	defer rows.Close()

	agents := []*core.Agent{}
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent row: %w", err)
		}
		agents = append(agents, a)
	}

	return agents, rows.Err()
}

// UpdateAgent writes the mutable agent fields.
func (s *SQLite) UpdateAgent(ctx context.Context, a *core.Agent) error {
	query := `
	UPDATE agents SET name = ?, model = ?, effort = ?, bootstrapped = ?, heartbeat_interval_ms = ?,
		show_heartbeat = ?, is_default = ?, updated_at = ?
	WHERE id = ?`

	result, err := s.exec(ctx, "update agent", query,
		a.Name, a.Model, string(a.Effort), boolInt(a.Bootstrapped), intervalMillis(a.HeartbeatInterval),
		boolInt(a.ShowHeartbeat), boolInt(a.IsDefault), time.Now().UnixMilli(), a.ID,
	)
	if isUniqueViolation(err) {
		return core.ErrAgentExists
	}
	if err != nil {
		return fmt.Errorf("update agent: %w", err)
	}

	return requireRow(result, core.ErrUnknownAgent)
}

// DeleteAgent removes the agent; foreign keys cascade to everything it owns.
func (s *SQLite) DeleteAgent(ctx context.Context, id string) error {
	result, err := s.exec(ctx, "delete agent", `DELETE FROM agents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete agent: %w", err)
	}

	return requireRow(result, core.ErrUnknownAgent)
}

// SetBootstrapped sets the bootstrap flag.
func (s *SQLite) SetBootstrapped(ctx context.Context, id string, done bool) error {
	result, err := s.exec(ctx, "set bootstrapped",
		`UPDATE agents SET bootstrapped = ?, updated_at = ? WHERE id = ?`,
		boolInt(done), time.Now().UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("set bootstrapped: %w", err)
	}

	return requireRow(result, core.ErrUnknownAgent)
}

// SetHeartbeatInterval sets or clears the heartbeat interval.
func (s *SQLite) SetHeartbeatInterval(ctx context.Context, id string, interval *time.Duration) error {
	result, err := s.exec(ctx, "set heartbeat interval",
		`UPDATE agents SET heartbeat_interval_ms = ?, updated_at = ? WHERE id = ?`,
		intervalMillis(interval), time.Now().UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("set heartbeat interval: %w", err)
	}

	return requireRow(result, core.ErrUnknownAgent)
}

// SetDefaultAgent marks id as the only default agent.
func (s *SQLite) SetDefaultAgent(ctx context.Context, id string) error {
	return withRetry(ctx, s.logger, "set default agent", s.opts.MaxRetries, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM agents WHERE id = ?`, id).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return core.ErrUnknownAgent
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE agents SET is_default = CASE WHEN id = ? THEN 1 ELSE 0 END`, id,
		); err != nil {
			return err
		}

		return tx.Commit()
	})
}

// --- messages ---

const messageColumns = `id, agent_id, role, content, tool_calls, kind, created_at`

func scanMessage(row rowScanner) (*core.Message, error) {
	var (
		m         core.Message
		role      string
		kind      string
		toolCalls sql.NullString
		createdAt int64
	)

	if err := row.Scan(&m.ID, &m.AgentID, &role, &m.Content, &toolCalls, &kind, &createdAt); err != nil {
		return nil, err
	}

	m.Role = core.Role(role)
	m.Kind = core.MessageKind(kind)
	m.CreatedAt = fromMillis(createdAt)

	if toolCalls.Valid && toolCalls.String != "" {
		calls, err := core.UnmarshalToolCalls([]byte(toolCalls.String))
		if err != nil {
			return nil, fmt.Errorf("decode tool calls: %w", err)
		}
		m.ToolCalls = calls
	}

	return &m, nil
}

func queryMessages(ctx context.Context, db *sql.DB, query string, args ...any) ([]*core.Message, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := []*core.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

// AppendMessage appends to the agent's conversation.
func (s *SQLite) AppendMessage(ctx context.Context, m *core.Message) error {
	toolCalls, err := core.MarshalToolCalls(m.ToolCalls)
	if err != nil {
		return fmt.Errorf("encode tool calls: %w", err)
	}

	var tc any
	if toolCalls != nil {
		tc = string(toolCalls)
	}

	kind := m.Kind
	if kind == "" {
		kind = core.KindChat
	}

	_, err = s.exec(ctx, "append message",
		`INSERT INTO messages (`+messageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.AgentID, string(m.Role), m.Content, tc, string(kind), m.CreatedAt.UnixMilli(),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return core.ErrUnknownAgent
		}
		return fmt.Errorf("append message: %w", err)
	}

	return nil
}

// RecentMessages returns the last limit messages of kind, oldest first.
func (s *SQLite) RecentMessages(ctx context.Context, agentID string, kind core.MessageKind, limit int) ([]*core.Message, error) {
	if limit <= 0 {
		limit = -1
	}

	query := `
	SELECT ` + messageColumns + ` FROM (
		SELECT seq, ` + messageColumns + ` FROM messages
		WHERE agent_id = ? AND kind = ?
		ORDER BY seq DESC LIMIT ?
	) ORDER BY seq ASC`

	return queryMessages(ctx, s.db, query, agentID, string(kind), limit)
}

// ListMessages returns every message of the agent, oldest first.
func (s *SQLite) ListMessages(ctx context.Context, agentID string) ([]*core.Message, error) {
	return queryMessages(ctx, s.db, `SELECT `+messageColumns+` FROM messages WHERE agent_id = ? ORDER BY seq`, agentID)
}

// CountMessages counts the agent's messages with the given role.
func (s *SQLite) CountMessages(ctx context.Context, agentID string, role core.Role) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE agent_id = ? AND role = ?`, agentID, string(role),
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// DeleteMessages clears the agent's conversation.
func (s *SQLite) DeleteMessages(ctx context.Context, agentID string) error {
	if _, err := s.exec(ctx, "delete messages", `DELETE FROM messages WHERE agent_id = ?`, agentID); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	return nil
}

// --- sessions ---

// GetSession returns the agent's session or (nil, nil).
func (s *SQLite) GetSession(ctx context.Context, agentID string) (*core.Session, error) {
	var (
		sess      core.Session
		updatedAt int64
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT agent_id, session_id, prompt_hash, updated_at FROM sessions WHERE agent_id = ?`, agentID,
	).Scan(&sess.AgentID, &sess.ContinuationHandle, &sess.PromptHash, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	sess.UpdatedAt = fromMillis(updatedAt)

	return &sess, nil
}

// PutSession inserts or replaces the agent's session.
func (s *SQLite) PutSession(ctx context.Context, sess *core.Session) error {
	query := `
	INSERT INTO sessions (agent_id, session_id, prompt_hash, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(agent_id) DO UPDATE SET
		session_id = excluded.session_id,
		prompt_hash = excluded.prompt_hash,
		updated_at = excluded.updated_at`

	if _, err := s.exec(ctx, "upsert session", query,
		sess.AgentID, sess.ContinuationHandle, sess.PromptHash, time.Now().UnixMilli(),
	); err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	return nil
}

// DeleteSession removes the agent's session if present.
func (s *SQLite) DeleteSession(ctx context.Context, agentID string) error {
	if _, err := s.exec(ctx, "delete session", `DELETE FROM sessions WHERE agent_id = ?`, agentID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// --- memories ---

// AddMemory stores a memory, assigning an id and timestamp when missing.
func (s *SQLite) AddMemory(ctx context.Context, m *core.Memory) error {
	if m.ID == "" {
		m.ID = core.NewID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	_, err := s.exec(ctx, "add memory",
		`INSERT INTO memories (id, agent_id, summary, created_at) VALUES (?, ?, ?, ?)`,
		m.ID, m.AgentID, m.Summary, m.CreatedAt.UnixMilli(),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return core.ErrUnknownAgent
		}
		return fmt.Errorf("add memory: %w", err)
	}

	return nil
}

// ListMemories returns the agent's memories, newest first.
func (s *SQLite) ListMemories(ctx context.Context, agentID string) ([]*core.Memory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_id, summary, created_at FROM memories WHERE agent_id = ? ORDER BY created_at DESC, rowid DESC`, agentID,
	)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	memories := []*core.Memory{}
	for rows.Next() {
		var (
			m         core.Memory
			createdAt int64
		)
		if err := rows.Scan(&m.ID, &m.AgentID, &m.Summary, &createdAt); err != nil {
			return nil, fmt.Errorf("scan memory row: %w", err)
		}
		m.CreatedAt = fromMillis(createdAt)
		memories = append(memories, &m)
	}

	return memories, rows.Err()
}

// DeleteMemories drops the agent's memories.
func (s *SQLite) DeleteMemories(ctx context.Context, agentID string) error {
	if _, err := s.exec(ctx, "delete memories", `DELETE FROM memories WHERE agent_id = ?`, agentID); err != nil {
		return fmt.Errorf("delete memories: %w", err)
	}
	return nil
}

// --- schedules ---

const scheduleColumns = `id, agent_id, description, interval_ms, next_run_at, last_run_at, active, created_at`

func scanSchedule(row rowScanner) (*core.Schedule, error) {
	var (
		sch                            core.Schedule
		intervalMs, nextRun, createdAt int64
		lastRun                        sql.NullInt64
		active                         int
	)

	if err := row.Scan(&sch.ID, &sch.AgentID, &sch.Description, &intervalMs, &nextRun, &lastRun, &active, &createdAt); err != nil {
		return nil, err
	}

	sch.Interval = time.Duration(intervalMs) * time.Millisecond
	sch.NextRunAt = fromMillis(nextRun)
	sch.Active = active == 1
	sch.CreatedAt = fromMillis(createdAt)

	if lastRun.Valid {
		t := fromMillis(lastRun.Int64)
		sch.LastRunAt = &t
	}

	return &sch, nil
}

func (s *SQLite) querySchedules(ctx context.Context, query string, args ...any) ([]*core.Schedule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query schedules: %w", err)
	}
	defer rows.Close()

	schedules := []*core.Schedule{}
	for rows.Next() {
		sch, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schedule row: %w", err)
		}
		schedules = append(schedules, sch)
	}

	return schedules, rows.Err()
}

// CreateSchedule stores a new schedule.
func (s *SQLite) CreateSchedule(ctx context.Context, sch *core.Schedule) error {
	var lastRun any
	if sch.LastRunAt != nil {
		lastRun = sch.LastRunAt.UnixMilli()
	}

	_, err := s.exec(ctx, "create schedule",
		`INSERT INTO schedules (`+scheduleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sch.ID, sch.AgentID, sch.Description, sch.Interval.Milliseconds(), sch.NextRunAt.UnixMilli(),
		lastRun, boolInt(sch.Active), sch.CreatedAt.UnixMilli(),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return core.ErrUnknownAgent
		}
		return fmt.Errorf("create schedule: %w", err)
	}

	return nil
}

// DueSchedules returns active schedules whose next run is at or before now.
func (s *SQLite) DueSchedules(ctx context.Context, now time.Time) ([]*core.Schedule, error) {
	return s.querySchedules(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE active = 1 AND next_run_at <= ? ORDER BY next_run_at`,
		now.UnixMilli(),
	)
}

// MarkScheduleRun records a run and advances the next run time.
func (s *SQLite) MarkScheduleRun(ctx context.Context, id string, ranAt, next time.Time) error {
	if _, err := s.exec(ctx, "mark schedule run",
		`UPDATE schedules SET last_run_at = ?, next_run_at = ? WHERE id = ?`,
		ranAt.UnixMilli(), next.UnixMilli(), id,
	); err != nil {
		return fmt.Errorf("mark schedule run: %w", err)
	}
	return nil
}

// DeactivateSchedule stops a schedule owned by agentID.
func (s *SQLite) DeactivateSchedule(ctx context.Context, id, agentID string) error {
	if _, err := s.exec(ctx, "deactivate schedule",
		`UPDATE schedules SET active = 0 WHERE id = ? AND agent_id = ?`, id, agentID,
	); err != nil {
		return fmt.Errorf("deactivate schedule: %w", err)
	}
	return nil
}

// ListSchedules returns the agent's schedules, oldest first.
func (s *SQLite) ListSchedules(ctx context.Context, agentID string) ([]*core.Schedule, error) {
	return s.querySchedules(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE agent_id = ? ORDER BY created_at`, agentID,
	)
}

// --- credentials & config ---

// PutCredential stores a secret for the agent.
func (s *SQLite) PutCredential(ctx context.Context, agentID, key, value string) error {
	_, err := s.exec(ctx, "put credential", `
	INSERT INTO credentials (agent_id, key, value) VALUES (?, ?, ?)
	ON CONFLICT(agent_id, key) DO UPDATE SET value = excluded.value`,
		agentID, key, value,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return core.ErrUnknownAgent
		}
		return fmt.Errorf("put credential: %w", err)
	}
	return nil
}

// GetCredential returns a stored secret.
func (s *SQLite) GetCredential(ctx context.Context, agentID, key string) (string, bool, error) {
	var value string

	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM credentials WHERE agent_id = ? AND key = ?`, agentID, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get credential: %w", err)
	}

	return value, true, nil
}

// GetConfig returns a setting.
func (s *SQLite) GetConfig(ctx context.Context, key string) (string, bool, error) {
	var value string

	err := s.db.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get config: %w", err)
	}

	return value, true, nil
}

// SetConfig stores a setting.
func (s *SQLite) SetConfig(ctx context.Context, key, value string) error {
	if _, err := s.exec(ctx, "set config", `
	INSERT INTO config (key, value) VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value,
	); err != nil {
		return fmt.Errorf("set config: %w", err)
	}
	return nil
}

// DeleteConfig removes a setting.
func (s *SQLite) DeleteConfig(ctx context.Context, key string) error {
	if _, err := s.exec(ctx, "delete config", `DELETE FROM config WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete config: %w", err)
	}
	return nil
}
