// Package kernel wires the store, bus, and role control loops into an
// event-driven system, and runs the reconciliation cycles that keep it
// live: startup catch-up, the autonomy tick, and the recovery watchdog.
package kernel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agentsmith/agentos/agent"
	"github.com/agentsmith/agentos/config"
	"github.com/agentsmith/agentos/events"
	"github.com/agentsmith/agentos/provider"
	"github.com/agentsmith/agentos/store"
	"github.com/agentsmith/agentos/tools"
)

// ProviderFactory builds a reasoning client for an agent's model config.
type ProviderFactory func(name, model string) (provider.Provider, error)

// Options configure a Kernel.
type Options struct {
	Store    store.Store
	Bus      *events.Bus
	Registry *tools.Registry
	Logger   *slog.Logger
	Kernel   config.KernelConfig
}

// Kernel owns the control loops and background cycles.
type Kernel struct {
	store    store.Store
	bus      *events.Bus
	registry *tools.Registry
	logger   *slog.Logger
	cfg      config.KernelConfig

	// Role index, built once at init.
	planner     *agent.Planner
	reviewer    *agent.Reviewer
	executors   map[string]*agent.Executor
	strategists map[string]*agent.Strategist

	mu                  sync.Mutex
	tickRunning         bool
	lastGoalScan        time.Time
	lastBlockedScan     time.Time
	lastStrategistBeat  time.Time
	strategistBeatValid bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a kernel. Call Init before Start.
func New(opts Options) *Kernel {
	cfg := opts.Kernel
	if cfg.AutonomyInterval <= 0 {
		cfg.AutonomyInterval = config.DefaultAutonomyInterval
	}
	if cfg.RecoveryInterval <= 0 {
		cfg.RecoveryInterval = config.DefaultRecoveryInterval
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = config.DefaultTaskTimeout
	}
	if cfg.StrategistInterval <= 0 {
		cfg.StrategistInterval = config.DefaultStrategistInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Kernel{
		store:       opts.Store,
		bus:         opts.Bus,
		registry:    opts.Registry,
		logger:      logger,
		cfg:         cfg,
		executors:   make(map[string]*agent.Executor),
		strategists: make(map[string]*agent.Strategist),
	}
}

// Init loads the agent records, builds one control loop per agent, indexes
// them by role, and subscribes the event handlers. The providerFactory is
// called once per agent.
func (k *Kernel) Init(providers ProviderFactory) error {
	records, err := k.store.ListAgents(store.AgentFilter{})
	if err != nil {
		return fmt.Errorf("load agents: %w", err)
	}

	for _, rec := range records {
		p, err := providers(rec.ModelConfig.Provider, rec.ModelConfig.Model)
		if err != nil {
			return fmt.Errorf("provider for %s: %w", rec.ID, err)
		}
		base := agent.Base{
			Self:     rec,
			Store:    k.store,
			Bus:      k.bus,
			Provider: p,
			Registry: k.registry,
			Logger:   k.logger.With("agent", rec.ID),
		}
		switch rec.Role {
		case store.RolePlanner:
			k.planner = agent.NewPlanner(base)
		case store.RoleExecutor:
			k.executors[rec.ID] = agent.NewExecutor(base)
		case store.RoleReviewer:
			k.reviewer = agent.NewReviewer(base)
		case store.RoleStrategist:
			k.strategists[rec.ID] = agent.NewStrategist(base)
		default:
			k.logger.Warn("unknown agent role", "agent", rec.ID, "role", rec.Role)
			continue
		}
		k.logger.Info("loaded agent", "agent", rec.ID, "role", rec.Role)
	}

	k.subscribe()
	return nil
}

// context returns the kernel's run context, or Background before Start.
func (k *Kernel) context() context.Context {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.ctx == nil {
		return context.Background()
	}
	return k.ctx
}

func (k *Kernel) subscribe() {
	k.bus.Subscribe(events.TaskCreated, func(ev events.Event) error {
		if k.planner == nil {
			return nil
		}
		task, err := k.store.GetTask(ev.EntityID)
		if err != nil {
			return err
		}
		// Only parentless tasks are goals to decompose; a new subtask just
		// needs an owner.
		if task.ParentTaskID == "" {
			if err := k.planner.ProcessGoal(k.context(), task.ID); err != nil {
				return err
			}
		}
		return k.planner.AssignTasks(k.context())
	})

	k.bus.Subscribe(events.TaskBlocked, func(ev events.Event) error {
		if k.planner == nil {
			return nil
		}
		return k.planner.HandleBlocked(k.context(), ev.EntityID)
	})

	k.bus.Subscribe(events.TaskAssigned, func(ev events.Event) error {
		task, err := k.store.GetTask(ev.EntityID)
		if err != nil {
			return err
		}
		if e, ok := k.executors[task.AssigneeID]; ok {
			return e.Process(k.context(), task.ID)
		}
		if s, ok := k.strategists[task.AssigneeID]; ok {
			return s.Process(k.context(), task.ID)
		}
		return nil
	})

	k.bus.Subscribe(events.TaskReviewNeeded, func(ev events.Event) error {
		if k.reviewer == nil {
			return nil
		}
		return k.reviewer.Review(k.context(), ev.EntityID)
	})

	k.bus.Subscribe(events.AgentIdle, func(ev events.Event) error {
		if _, ok := k.executors[ev.EntityID]; !ok {
			return nil
		}
		return k.assignNextTask(ev.EntityID)
	})
}

// assignNextTask hands the highest-priority assignable intake task to the
// given executor.
func (k *Kernel) assignNextTask(executorID string) error {
	st := store.StatusIntake
	tasks, err := k.store.ListTasks(store.TaskFilter{
		Status:         &st,
		Unassigned:     true,
		AssignableOnly: true,
		Limit:          1,
	})
	if err != nil {
		return fmt.Errorf("find next task: %w", err)
	}
	if len(tasks) == 0 {
		return nil
	}
	task := tasks[0]
	task.Status = store.StatusAssigned
	task.AssigneeID = executorID
	if err := k.store.UpdateTask(task); err != nil {
		return fmt.Errorf("assign next task: %w", err)
	}
	k.bus.Dispatch(events.Event{Type: events.TaskAssigned, EntityID: task.ID})
	return nil
}

// Start runs startup reconciliation and launches the autonomy and recovery
// cycles. It returns immediately; the cycles run until Stop.
func (k *Kernel) Start(ctx context.Context) error {
	now := time.Now().UTC()
	k.mu.Lock()
	k.ctx, k.cancel = context.WithCancel(ctx)
	k.lastGoalScan = now
	k.lastBlockedScan = now
	k.mu.Unlock()

	if err := k.Reconcile(); err != nil {
		return err
	}

	k.wg.Add(2)
	go k.runCycle(k.cfg.AutonomyInterval, k.AutonomyTick)
	go k.runCycle(k.cfg.RecoveryInterval, k.RecoverStuckTasks)

	k.logger.Info("kernel started",
		"autonomy_interval", k.cfg.AutonomyInterval,
		"recovery_interval", k.cfg.RecoveryInterval,
		"task_timeout", k.cfg.TaskTimeout)
	return nil
}

func (k *Kernel) runCycle(interval time.Duration, fn func() error) {
	defer k.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-k.ctx.Done():
			return
		case <-ticker.C:
			if err := fn(); err != nil {
				k.logger.Error("cycle failed", "error", err)
			}
		}
	}
}

// Stop cancels the background cycles and marks all agents offline.
func (k *Kernel) Stop() {
	if k.cancel != nil {
		k.cancel()
	}
	k.wg.Wait()
	k.bus.Wait()

	agents, err := k.store.ListAgents(store.AgentFilter{})
	if err != nil {
		k.logger.Error("list agents on stop", "error", err)
		return
	}
	for _, a := range agents {
		if err := k.store.UpdateAgentStatus(a.ID, store.AgentOffline); err != nil {
			k.logger.Warn("mark offline failed", "agent", a.ID, "error", err)
		}
	}
	k.logger.Info("kernel stopped")
}

// Reconcile re-dispatches events for work that predates this process:
// intake goals, assigned and in-progress tasks with owners, and tasks
// awaiting review. Everything downstream is idempotent, so over-dispatch
// is harmless.
func (k *Kernel) Reconcile() error {
	st := store.StatusIntake
	noParent := false
	goals, err := k.store.ListTasks(store.TaskFilter{Status: &st, HasParent: &noParent})
	if err != nil {
		return fmt.Errorf("list intake goals: %w", err)
	}
	for _, g := range goals {
		k.bus.Dispatch(events.Event{Type: events.TaskCreated, EntityID: g.ID})
	}

	owned, err := k.store.ListTasks(store.TaskFilter{
		Statuses: []store.TaskStatus{store.StatusAssigned, store.StatusInProgress},
	})
	if err != nil {
		return fmt.Errorf("list owned tasks: %w", err)
	}
	for _, t := range owned {
		if t.AssigneeID != "" {
			k.bus.Dispatch(events.Event{Type: events.TaskAssigned, EntityID: t.ID})
		}
	}

	rv := store.StatusReview
	reviews, err := k.store.ListTasks(store.TaskFilter{Status: &rv})
	if err != nil {
		return fmt.Errorf("list review tasks: %w", err)
	}
	for _, t := range reviews {
		k.bus.Dispatch(events.Event{Type: events.TaskReviewNeeded, EntityID: t.ID})
	}

	k.logger.Info("reconciled",
		"goals", len(goals), "owned", len(owned), "reviews", len(reviews))
	return nil
}

// AutonomyTick runs one pass of the periodic reconciliation. A tick that
// is still running suppresses the next one.
func (k *Kernel) AutonomyTick() error {
	k.mu.Lock()
	if k.tickRunning {
		k.mu.Unlock()
		return nil
	}
	k.tickRunning = true
	k.mu.Unlock()
	defer func() {
		k.mu.Lock()
		k.tickRunning = false
		k.mu.Unlock()
	}()

	if err := k.dispatchNewGoals(); err != nil {
		return err
	}
	if err := k.dispatchBlockedUpdates(); err != nil {
		return err
	}
	if err := k.dispatchAssignedWithIdleOwner(); err != nil {
		return err
	}
	if err := k.assignIdleExecutors(); err != nil {
		return err
	}
	if err := k.nudgeReviewer(); err != nil {
		return err
	}
	return k.strategistHeartbeatIfDue()
}

// dispatchNewGoals picks up intake goals created since the last scan. The
// watermark advances before dispatch: a goal whose handler dies is
// recovered by the watchdog, not by rescanning.
func (k *Kernel) dispatchNewGoals() error {
	now := time.Now().UTC()
	k.mu.Lock()
	since := k.lastGoalScan
	k.lastGoalScan = now
	k.mu.Unlock()

	st := store.StatusIntake
	noParent := false
	goals, err := k.store.ListTasks(store.TaskFilter{
		Status:       &st,
		HasParent:    &noParent,
		CreatedAfter: &since,
		CreatedUpTo:  &now,
	})
	if err != nil {
		return fmt.Errorf("scan new goals: %w", err)
	}
	for _, g := range goals {
		k.bus.Dispatch(events.Event{Type: events.TaskCreated, EntityID: g.ID})
	}
	return nil
}

func (k *Kernel) dispatchBlockedUpdates() error {
	now := time.Now().UTC()
	k.mu.Lock()
	since := k.lastBlockedScan
	k.lastBlockedScan = now
	k.mu.Unlock()

	st := store.StatusBlocked
	blocked, err := k.store.ListTasks(store.TaskFilter{
		Status:       &st,
		UpdatedAfter: &since,
		UpdatedUpTo:  &now,
	})
	if err != nil {
		return fmt.Errorf("scan blocked tasks: %w", err)
	}
	for _, t := range blocked {
		k.bus.Dispatch(events.Event{Type: events.TaskBlocked, EntityID: t.ID})
	}
	return nil
}

// dispatchAssignedWithIdleOwner re-dispatches assigned tasks whose owner
// is idle; the assignment event may have been suppressed or lost.
func (k *Kernel) dispatchAssignedWithIdleOwner() error {
	st := store.StatusAssigned
	tasks, err := k.store.ListTasks(store.TaskFilter{Status: &st})
	if err != nil {
		return fmt.Errorf("scan assigned tasks: %w", err)
	}
	for _, t := range tasks {
		if t.AssigneeID == "" {
			continue
		}
		owner, err := k.store.GetAgent(t.AssigneeID)
		if err != nil || owner.Status != store.AgentIdle {
			continue
		}
		k.bus.Dispatch(events.Event{Type: events.TaskAssigned, EntityID: t.ID})
	}
	return nil
}

func (k *Kernel) assignIdleExecutors() error {
	idle, err := k.store.ListAgents(store.AgentFilter{
		Role:   store.RoleExecutor,
		Status: store.AgentIdle,
	})
	if err != nil {
		return fmt.Errorf("list idle executors: %w", err)
	}
	for _, a := range idle {
		if err := k.assignNextTask(a.ID); err != nil {
			return err
		}
	}
	return nil
}

// nudgeReviewer dispatches the oldest-updated review task when the
// reviewer is idle.
func (k *Kernel) nudgeReviewer() error {
	if k.reviewer == nil {
		return nil
	}
	reviewers, err := k.store.ListAgents(store.AgentFilter{
		Role:   store.RoleReviewer,
		Status: store.AgentIdle,
	})
	if err != nil || len(reviewers) == 0 {
		return err
	}

	st := store.StatusReview
	tasks, err := k.store.ListTasks(store.TaskFilter{
		Status:  &st,
		OrderBy: store.OrderUpdatedAsc,
		Limit:   1,
	})
	if err != nil {
		return fmt.Errorf("scan review tasks: %w", err)
	}
	if len(tasks) > 0 {
		k.bus.Dispatch(events.Event{Type: events.TaskReviewNeeded, EntityID: tasks[0].ID})
	}
	return nil
}

func (k *Kernel) strategistHeartbeatIfDue() error {
	if len(k.strategists) == 0 {
		return nil
	}
	now := time.Now().UTC()
	k.mu.Lock()
	due := !k.strategistBeatValid || now.Sub(k.lastStrategistBeat) >= k.cfg.StrategistInterval
	if due {
		k.lastStrategistBeat = now
		k.strategistBeatValid = true
	}
	k.mu.Unlock()
	if !due {
		return nil
	}

	for _, s := range k.strategists {
		if err := s.Heartbeat(k.context()); err != nil {
			k.logger.Error("strategist heartbeat failed", "error", err)
		}
	}
	return nil
}

// RecoverStuckTasks resets assigned or in-progress tasks whose work began
// more than the task timeout ago: back to intake, owner and start time
// cleared, the timeout recorded, and the task re-dispatched as new.
func (k *Kernel) RecoverStuckTasks() error {
	cutoff := time.Now().UTC().Add(-k.cfg.TaskTimeout)
	stuck, err := k.store.ListTasks(store.TaskFilter{
		Statuses:      []store.TaskStatus{store.StatusAssigned, store.StatusInProgress},
		StartedBefore: &cutoff,
	})
	if err != nil {
		return fmt.Errorf("scan stuck tasks: %w", err)
	}

	for _, t := range stuck {
		k.logger.Warn("resetting stuck task", "task", t.ID, "title", t.Title)
		t.Status = store.StatusIntake
		t.AssigneeID = ""
		t.StartedAt = nil
		t.Error = fmt.Sprintf("Task exceeded %d minute timeout and was reset",
			int(k.cfg.TaskTimeout.Minutes()))
		if err := k.store.UpdateTask(t); err != nil {
			return fmt.Errorf("reset stuck task %s: %w", t.ID, err)
		}
		k.bus.Dispatch(events.Event{Type: events.TaskCreated, EntityID: t.ID})
	}
	return nil
}
