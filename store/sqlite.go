package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id             TEXT PRIMARY KEY,
	title          TEXT NOT NULL,
	description    TEXT NOT NULL,
	status         TEXT NOT NULL,
	priority       INTEGER NOT NULL DEFAULT 1,
	assignee_id    TEXT NOT NULL DEFAULT '',
	created_by_id  TEXT NOT NULL DEFAULT '',
	parent_task_id TEXT NOT NULL DEFAULT '',
	branch_name    TEXT NOT NULL DEFAULT '',
	result         TEXT NOT NULL DEFAULT '',
	error          TEXT NOT NULL DEFAULT '',
	tags           TEXT NOT NULL DEFAULT '[]',
	created_at     DATETIME NOT NULL,
	updated_at     DATETIME NOT NULL,
	started_at     DATETIME,
	completed_at   DATETIME
);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_parent ON tasks(parent_task_id);

CREATE TABLE IF NOT EXISTS agents (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	role           TEXT NOT NULL,
	status         TEXT NOT NULL,
	system_prompt  TEXT NOT NULL DEFAULT '',
	model_config   TEXT NOT NULL DEFAULT '{}',
	last_heartbeat DATETIME,
	created_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS activities (
	id         TEXT PRIMARY KEY,
	event_type TEXT NOT NULL,
	agent_id   TEXT NOT NULL DEFAULT '',
	task_id    TEXT NOT NULL DEFAULT '',
	message    TEXT NOT NULL,
	metadata   TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_activities_task ON activities(task_id);

CREATE TABLE IF NOT EXISTS messages (
	id            TEXT PRIMARY KEY,
	content       TEXT NOT NULL,
	from_agent_id TEXT NOT NULL,
	to_agent_id   TEXT NOT NULL DEFAULT '',
	task_id       TEXT NOT NULL DEFAULT '',
	message_type  TEXT NOT NULL DEFAULT 'info',
	created_at    DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_task ON messages(task_id);
`

// SQLiteStore persists all entities in a single SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures
// the schema exists. The caller is responsible for calling Close.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1) // prevent SQLITE_BUSY
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// CreateTask persists a new task and sets its ID, CreatedAt, and UpdatedAt.
// A missing status defaults to intake.
func (s *SQLiteStore) CreateTask(t *Task) (string, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = StatusIntake
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	tags, _ := json.Marshal(t.Tags)

	_, err := s.db.Exec(`
		INSERT INTO tasks
			(id, title, description, status, priority, assignee_id, created_by_id,
			 parent_task_id, branch_name, result, error, tags,
			 created_at, updated_at, started_at, completed_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Title, t.Description, string(t.Status), t.Priority,
		t.AssigneeID, t.CreatedByID, t.ParentTaskID, t.BranchName,
		t.Result, t.Error, string(tags),
		t.CreatedAt, t.UpdatedAt,
		nullTime(t.StartedAt), nullTime(t.CompletedAt),
	)
	if err != nil {
		return "", fmt.Errorf("insert task: %w", err)
	}
	return t.ID, nil
}

// GetTask retrieves a task by ID.
func (s *SQLiteStore) GetTask(id string) (*Task, error) {
	row := s.db.QueryRow(`SELECT * FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task %s not found", id)
	}
	return t, err
}

// UpdateTask saves changes to an existing task, updating UpdatedAt
// automatically.
func (s *SQLiteStore) UpdateTask(t *Task) error {
	t.UpdatedAt = time.Now().UTC()
	tags, _ := json.Marshal(t.Tags)

	res, err := s.db.Exec(`
		UPDATE tasks SET
			title=?, description=?, status=?, priority=?, assignee_id=?, created_by_id=?,
			parent_task_id=?, branch_name=?, result=?, error=?, tags=?,
			updated_at=?, started_at=?, completed_at=?
		WHERE id=?`,
		t.Title, t.Description, string(t.Status), t.Priority,
		t.AssigneeID, t.CreatedByID, t.ParentTaskID, t.BranchName,
		t.Result, t.Error, string(tags),
		t.UpdatedAt, nullTime(t.StartedAt), nullTime(t.CompletedAt),
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("task %s not found", t.ID)
	}
	return nil
}

// ListTasks returns tasks matching the filter.
func (s *SQLiteStore) ListTasks(f TaskFilter) ([]*Task, error) {
	where, args := buildTaskWhere(f)

	q := strings.Builder{}
	q.WriteString("SELECT * FROM tasks")
	q.WriteString(where)
	switch f.OrderBy {
	case OrderUpdatedAsc:
		q.WriteString(" ORDER BY updated_at ASC")
	case OrderCreatedDesc:
		q.WriteString(" ORDER BY created_at DESC")
	default:
		q.WriteString(" ORDER BY priority DESC, created_at ASC")
	}
	if f.Limit > 0 {
		q.WriteString(fmt.Sprintf(" LIMIT %d", f.Limit))
		if f.Offset > 0 {
			q.WriteString(fmt.Sprintf(" OFFSET %d", f.Offset))
		}
	}

	rows, err := s.db.Query(q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// CountTasks returns the number of tasks matching the filter.
func (s *SQLiteStore) CountTasks(f TaskFilter) (int, error) {
	where, args := buildTaskWhere(f)
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM tasks"+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return n, nil
}

// DeleteTask removes a task by ID.
func (s *SQLiteStore) DeleteTask(id string) error {
	res, err := s.db.Exec("DELETE FROM tasks WHERE id=?", id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("task %s not found", id)
	}
	return nil
}

func buildTaskWhere(f TaskFilter) (string, []any) {
	q := strings.Builder{}
	q.WriteString(" WHERE 1=1")
	args := []any{}

	if f.Status != nil {
		q.WriteString(" AND status=?")
		args = append(args, string(*f.Status))
	}
	if len(f.Statuses) > 0 {
		q.WriteString(" AND status IN (?" + strings.Repeat(",?", len(f.Statuses)-1) + ")")
		for _, st := range f.Statuses {
			args = append(args, string(st))
		}
	}
	if f.AssigneeID != "" {
		q.WriteString(" AND assignee_id=?")
		args = append(args, f.AssigneeID)
	}
	if f.Unassigned {
		q.WriteString(" AND assignee_id=''")
	}
	if f.CreatedByID != "" {
		q.WriteString(" AND created_by_id=?")
		args = append(args, f.CreatedByID)
	}
	if f.ParentTaskID != "" {
		q.WriteString(" AND parent_task_id=?")
		args = append(args, f.ParentTaskID)
	}
	if f.HasParent != nil {
		if *f.HasParent {
			q.WriteString(" AND parent_task_id!=''")
		} else {
			q.WriteString(" AND parent_task_id=''")
		}
	}
	if f.AssignableOnly {
		// A leaf subtask, or a standalone task with no children of its own.
		q.WriteString(" AND (parent_task_id!='' OR NOT EXISTS" +
			" (SELECT 1 FROM tasks c WHERE c.parent_task_id = tasks.id))")
	}
	if f.CreatedAfter != nil {
		q.WriteString(" AND created_at>?")
		args = append(args, f.CreatedAfter.UTC())
	}
	if f.CreatedUpTo != nil {
		q.WriteString(" AND created_at<=?")
		args = append(args, f.CreatedUpTo.UTC())
	}
	if f.UpdatedAfter != nil {
		q.WriteString(" AND updated_at>?")
		args = append(args, f.UpdatedAfter.UTC())
	}
	if f.UpdatedUpTo != nil {
		q.WriteString(" AND updated_at<=?")
		args = append(args, f.UpdatedUpTo.UTC())
	}
	if f.StartedBefore != nil {
		q.WriteString(" AND started_at IS NOT NULL AND started_at<?")
		args = append(args, f.StartedBefore.UTC())
	}
	return q.String(), args
}

// UpsertAgent creates or replaces an agent record, preserving CreatedAt on
// replace.
func (s *SQLiteStore) UpsertAgent(a *Agent) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = AgentIdle
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	mc, _ := json.Marshal(a.ModelConfig)

	_, err := s.db.Exec(`
		INSERT INTO agents (id, name, role, status, system_prompt, model_config, last_heartbeat, created_at)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, role=excluded.role, status=excluded.status,
			system_prompt=excluded.system_prompt, model_config=excluded.model_config`,
		a.ID, a.Name, string(a.Role), string(a.Status), a.SystemPrompt,
		string(mc), nullTime(a.LastHeartbeat), a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert agent: %w", err)
	}
	return nil
}

// GetAgent retrieves an agent by ID.
func (s *SQLiteStore) GetAgent(id string) (*Agent, error) {
	row := s.db.QueryRow(`SELECT * FROM agents WHERE id = ?`, id)
	a, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("agent %s not found", id)
	}
	return a, err
}

// ListAgents returns agents matching the filter, ordered by name.
func (s *SQLiteStore) ListAgents(f AgentFilter) ([]*Agent, error) {
	q := strings.Builder{}
	q.WriteString("SELECT * FROM agents WHERE 1=1")
	args := []any{}

	if f.Role != "" {
		q.WriteString(" AND role=?")
		args = append(args, string(f.Role))
	}
	if f.Status != "" {
		q.WriteString(" AND status=?")
		args = append(args, string(f.Status))
	}
	q.WriteString(" ORDER BY name ASC")

	rows, err := s.db.Query(q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []*Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// UpdateAgentStatus sets an agent's status and stamps LastHeartbeat.
func (s *SQLiteStore) UpdateAgentStatus(id string, status AgentStatus) error {
	res, err := s.db.Exec(
		"UPDATE agents SET status=?, last_heartbeat=? WHERE id=?",
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update agent status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("agent %s not found", id)
	}
	return nil
}

// LogActivity appends an audit record. Activities are never updated.
func (s *SQLiteStore) LogActivity(a *Activity) (string, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = time.Now().UTC()
	metadata, _ := json.Marshal(a.Metadata)

	_, err := s.db.Exec(`
		INSERT INTO activities (id, event_type, agent_id, task_id, message, metadata, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		a.ID, a.EventType, a.AgentID, a.TaskID, a.Message, string(metadata), a.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("insert activity: %w", err)
	}
	return a.ID, nil
}

// ListActivities returns activity records matching the filter, newest first.
func (s *SQLiteStore) ListActivities(f ActivityFilter) ([]*Activity, error) {
	q := strings.Builder{}
	q.WriteString("SELECT * FROM activities WHERE 1=1")
	args := []any{}

	if f.TaskID != "" {
		q.WriteString(" AND task_id=?")
		args = append(args, f.TaskID)
	}
	if f.AgentID != "" {
		q.WriteString(" AND agent_id=?")
		args = append(args, f.AgentID)
	}
	if f.EventType != "" {
		q.WriteString(" AND event_type=?")
		args = append(args, f.EventType)
	}
	q.WriteString(" ORDER BY created_at DESC")
	if f.Limit > 0 {
		q.WriteString(fmt.Sprintf(" LIMIT %d", f.Limit))
		if f.Offset > 0 {
			q.WriteString(fmt.Sprintf(" OFFSET %d", f.Offset))
		}
	}

	rows, err := s.db.Query(q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	var acts []*Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		acts = append(acts, a)
	}
	return acts, rows.Err()
}

// CreateMessage persists a message and sets its ID and CreatedAt.
func (s *SQLiteStore) CreateMessage(m *Message) (string, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.MessageType == "" {
		m.MessageType = "info"
	}
	m.CreatedAt = time.Now().UTC()

	_, err := s.db.Exec(`
		INSERT INTO messages (id, content, from_agent_id, to_agent_id, task_id, message_type, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		m.ID, m.Content, m.FromAgentID, m.ToAgentID, m.TaskID, m.MessageType, m.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("insert message: %w", err)
	}
	return m.ID, nil
}

// ListMessages returns messages matching the filter in chronological order.
func (s *SQLiteStore) ListMessages(f MessageFilter) ([]*Message, error) {
	q := strings.Builder{}
	q.WriteString("SELECT * FROM messages WHERE 1=1")
	args := []any{}

	if f.TaskID != "" {
		q.WriteString(" AND task_id=?")
		args = append(args, f.TaskID)
	}
	if f.ToAgentID != "" {
		// Directed to the agent, or broadcast.
		q.WriteString(" AND (to_agent_id=? OR to_agent_id='')")
		args = append(args, f.ToAgentID)
	}
	// With a limit, take the newest N; the result is always oldest-first.
	if f.Limit > 0 {
		q.WriteString(" ORDER BY created_at DESC")
		q.WriteString(fmt.Sprintf(" LIMIT %d", f.Limit))
		if f.Offset > 0 {
			q.WriteString(fmt.Sprintf(" OFFSET %d", f.Offset))
		}
	} else {
		q.WriteString(" ORDER BY created_at ASC")
	}

	rows, err := s.db.Query(q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if f.Limit > 0 {
		for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
			msgs[i], msgs[j] = msgs[j], msgs[i]
		}
	}
	return msgs, nil
}

// scanner abstracts sql.Row and sql.Rows for the scan helpers.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (*Task, error) {
	var t Task
	var status, tagsJSON string
	var startedAt, completedAt sql.NullTime

	err := s.Scan(
		&t.ID, &t.Title, &t.Description, &status, &t.Priority,
		&t.AssigneeID, &t.CreatedByID, &t.ParentTaskID, &t.BranchName,
		&t.Result, &t.Error, &tagsJSON,
		&t.CreatedAt, &t.UpdatedAt,
		&startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Status = TaskStatus(status)
	_ = json.Unmarshal([]byte(tagsJSON), &t.Tags)

	if startedAt.Valid {
		t.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	return &t, nil
}

func scanAgent(s scanner) (*Agent, error) {
	var a Agent
	var role, status, mcJSON string
	var lastHeartbeat sql.NullTime

	err := s.Scan(
		&a.ID, &a.Name, &role, &status, &a.SystemPrompt, &mcJSON,
		&lastHeartbeat, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Role = AgentRole(role)
	a.Status = AgentStatus(status)
	_ = json.Unmarshal([]byte(mcJSON), &a.ModelConfig)

	if lastHeartbeat.Valid {
		a.LastHeartbeat = &lastHeartbeat.Time
	}
	return &a, nil
}

func scanActivity(s scanner) (*Activity, error) {
	var a Activity
	var metadataJSON string

	err := s.Scan(
		&a.ID, &a.EventType, &a.AgentID, &a.TaskID, &a.Message,
		&metadataJSON, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(metadataJSON), &a.Metadata)
	return &a, nil
}

func scanMessage(s scanner) (*Message, error) {
	var m Message
	err := s.Scan(
		&m.ID, &m.Content, &m.FromAgentID, &m.ToAgentID, &m.TaskID,
		&m.MessageType, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
