// Package store defines the task, agent, activity, and message models and
// their persistence. The store is the single source of truth: in-memory
// events are derived from it, never the other way around.
package store

import "time"

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	StatusIntake     TaskStatus = "intake"
	StatusAssigned   TaskStatus = "assigned"
	StatusInProgress TaskStatus = "in_progress"
	StatusBlocked    TaskStatus = "blocked"
	StatusReview     TaskStatus = "review"
	StatusDone       TaskStatus = "done"
	StatusCancelled  TaskStatus = "cancelled"
)

// Terminal reports whether the status permits no further automatic transition.
func (s TaskStatus) Terminal() bool {
	return s == StatusDone || s == StatusCancelled
}

// AgentRole identifies which control loop drives an agent.
type AgentRole string

const (
	RolePlanner    AgentRole = "planner"
	RoleExecutor   AgentRole = "executor"
	RoleReviewer   AgentRole = "reviewer"
	RoleStrategist AgentRole = "strategist"
)

// AgentStatus is the agent's advisory state. "busy" brackets exactly one
// control-loop invocation; it is a soft gate, not a transactional lock.
type AgentStatus string

const (
	AgentIdle    AgentStatus = "idle"
	AgentBusy    AgentStatus = "busy"
	AgentOnline  AgentStatus = "online"
	AgentOffline AgentStatus = "offline"
)

// Task is a unit of work. A parentless task with children is a goal;
// only leaf or standalone tasks are assignable to executors.
type Task struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Status       TaskStatus `json:"status"`
	Priority     int        `json:"priority"` // higher = more urgent
	AssigneeID   string     `json:"assignee_id,omitempty"`
	CreatedByID  string     `json:"created_by_id,omitempty"`
	ParentTaskID string     `json:"parent_task_id,omitempty"`
	BranchName   string     `json:"branch_name,omitempty"`
	Result       string     `json:"result,omitempty"`
	Error        string     `json:"error,omitempty"`
	Tags         []string   `json:"tags,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// ModelConfig selects the reasoning backend for an agent.
type ModelConfig struct {
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
}

// Agent is a role instance.
type Agent struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Role          AgentRole   `json:"role"`
	Status        AgentStatus `json:"status"`
	SystemPrompt  string      `json:"system_prompt"`
	ModelConfig   ModelConfig `json:"model_config"`
	LastHeartbeat *time.Time  `json:"last_heartbeat,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}

// Activity is an append-only audit record. Activities are never updated
// or deleted.
type Activity struct {
	ID        string            `json:"id"`
	EventType string            `json:"event_type"`
	AgentID   string            `json:"agent_id,omitempty"`
	TaskID    string            `json:"task_id,omitempty"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Message is a directed or broadcast note attached to a task. Messages are
// the control loops' working memory.
type Message struct {
	ID          string    `json:"id"`
	Content     string    `json:"content"`
	FromAgentID string    `json:"from_agent_id"`
	ToAgentID   string    `json:"to_agent_id,omitempty"` // empty = broadcast
	TaskID      string    `json:"task_id,omitempty"`
	MessageType string    `json:"message_type"`
	CreatedAt   time.Time `json:"created_at"`
}

// TaskOrder controls result ordering for task listings.
type TaskOrder int

const (
	// OrderPriority sorts by priority descending, then creation ascending.
	OrderPriority TaskOrder = iota
	// OrderUpdatedAsc sorts by last update, oldest first.
	OrderUpdatedAsc
	// OrderCreatedDesc sorts by creation time, newest first.
	OrderCreatedDesc
)

// TaskFilter controls which tasks are returned by ListTasks and CountTasks.
type TaskFilter struct {
	Status       *TaskStatus
	Statuses     []TaskStatus
	AssigneeID   string
	Unassigned   bool // only tasks with no assignee
	CreatedByID  string
	ParentTaskID string
	HasParent    *bool // true: subtasks only; false: parentless only
	// AssignableOnly restricts to leaf or standalone tasks: a subtask, or a
	// parentless task with no children of its own.
	AssignableOnly bool
	CreatedAfter   *time.Time
	CreatedUpTo    *time.Time
	UpdatedAfter   *time.Time
	UpdatedUpTo    *time.Time
	StartedBefore  *time.Time
	OrderBy        TaskOrder
	Limit          int
	Offset         int
}

// AgentFilter controls which agents are returned by ListAgents.
type AgentFilter struct {
	Role   AgentRole
	Status AgentStatus
}

// ActivityFilter controls which activity records are returned.
type ActivityFilter struct {
	TaskID    string
	AgentID   string
	EventType string
	Limit     int
	Offset    int
}

// MessageFilter controls which messages are returned.
type MessageFilter struct {
	TaskID    string
	ToAgentID string
	Limit     int
	Offset    int
}

// TaskStore persists and retrieves tasks.
type TaskStore interface {
	// CreateTask persists a new task and returns its assigned ID.
	CreateTask(t *Task) (string, error)

	// GetTask retrieves a task by ID.
	GetTask(id string) (*Task, error)

	// UpdateTask saves changes to an existing task.
	UpdateTask(t *Task) error

	// ListTasks returns tasks matching the given filter.
	ListTasks(f TaskFilter) ([]*Task, error)

	// CountTasks returns the number of tasks matching the filter.
	CountTasks(f TaskFilter) (int, error)

	// DeleteTask removes a task by ID. The control loops never delete;
	// this exists for operator/administrative use.
	DeleteTask(id string) error
}

// AgentStore persists and retrieves agents.
type AgentStore interface {
	// UpsertAgent creates or replaces an agent record.
	UpsertAgent(a *Agent) error

	// GetAgent retrieves an agent by ID.
	GetAgent(id string) (*Agent, error)

	// ListAgents returns agents matching the filter.
	ListAgents(f AgentFilter) ([]*Agent, error)

	// UpdateAgentStatus sets an agent's status and stamps its heartbeat.
	UpdateAgentStatus(id string, status AgentStatus) error
}

// ActivityStore appends and reads the audit log.
type ActivityStore interface {
	// LogActivity appends an audit record and returns its ID.
	LogActivity(a *Activity) (string, error)

	// ListActivities returns activity records matching the filter,
	// newest first unless the filter says otherwise.
	ListActivities(f ActivityFilter) ([]*Activity, error)
}

// MessageStore persists inter-agent messages.
type MessageStore interface {
	// CreateMessage persists a message and returns its ID.
	CreateMessage(m *Message) (string, error)

	// ListMessages returns messages matching the filter in
	// chronological order.
	ListMessages(f MessageFilter) ([]*Message, error)
}

// Store is the combined persistence interface consumed by the kernel,
// control loops, and presentation layers.
type Store interface {
	TaskStore
	AgentStore
	ActivityStore
	MessageStore
	Close() error
}
