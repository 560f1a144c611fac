package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/agentsmith/agentos/provider/mock"
	"github.com/agentsmith/agentos/store"
)

func TestReviewerApprove(t *testing.T) {
	mp := mock.New(`{"decision":"approve","reasoning":"solid work","improvements":["add docs"]}`)
	base := newTestBase(t, store.RoleReviewer, mp)
	r := NewReviewer(base)

	task := mustCreate(t, base.Store, &store.Task{
		Title: "feature", Status: store.StatusReview, AssigneeID: "e1",
	})
	if err := r.Review(context.Background(), task.ID); err != nil {
		t.Fatalf("Review: %v", err)
	}

	got := getTask(t, base.Store, task.ID)
	if got.Status != store.StatusDone {
		t.Errorf("status = %q, want done", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("expected CompletedAt")
	}

	msgs, _ := base.Store.ListMessages(store.MessageFilter{TaskID: task.ID})
	if len(msgs) != 1 || !strings.Contains(msgs[0].Content, "APPROVED") ||
		!strings.Contains(msgs[0].Content, "add docs") {
		t.Errorf("messages = %v, want approval with suggestions", msgs)
	}
}

func TestReviewerReject(t *testing.T) {
	mp := mock.New(`{"decision":"reject","reasoning":"incomplete","feedback":"tests are missing"}`)
	base := newTestBase(t, store.RoleReviewer, mp)
	r := NewReviewer(base)

	task := mustCreate(t, base.Store, &store.Task{
		Title: "feature", Status: store.StatusReview, AssigneeID: "e1",
	})
	if err := r.Review(context.Background(), task.ID); err != nil {
		t.Fatalf("Review: %v", err)
	}

	got := getTask(t, base.Store, task.ID)
	if got.Status != store.StatusInProgress {
		t.Errorf("status = %q, want in_progress", got.Status)
	}

	msgs, _ := base.Store.ListMessages(store.MessageFilter{TaskID: task.ID, ToAgentID: "e1"})
	if len(msgs) != 1 || !strings.Contains(msgs[0].Content, "tests are missing") {
		t.Errorf("messages = %v, want rejection feedback to assignee", msgs)
	}
}

func TestReviewerUnparsableLeavesInReview(t *testing.T) {
	mp := mock.New("looks fine to me I guess")
	base := newTestBase(t, store.RoleReviewer, mp)
	r := NewReviewer(base)

	task := mustCreate(t, base.Store, &store.Task{Title: "feature", Status: store.StatusReview})
	if err := r.Review(context.Background(), task.ID); err != nil {
		t.Fatalf("Review: %v", err)
	}
	if got := getTask(t, base.Store, task.ID); got.Status != store.StatusReview {
		t.Errorf("status = %q, want review unchanged", got.Status)
	}
}

func TestReviewerSkipsNonReviewTask(t *testing.T) {
	mp := mock.New(`{"decision":"approve","reasoning":"x"}`)
	base := newTestBase(t, store.RoleReviewer, mp)
	r := NewReviewer(base)

	task := mustCreate(t, base.Store, &store.Task{Title: "wip", Status: store.StatusInProgress})
	if err := r.Review(context.Background(), task.ID); err != nil {
		t.Fatalf("Review: %v", err)
	}
	if mp.CallCount() != 0 {
		t.Error("provider called for non-review task")
	}
}

func TestReviewerCascadesParentCompletion(t *testing.T) {
	mp := mock.New(`{"decision":"approve","reasoning":"good"}`)
	base := newTestBase(t, store.RoleReviewer, mp)
	r := NewReviewer(base)

	grand := mustCreate(t, base.Store, &store.Task{Title: "grand", Status: store.StatusInProgress})
	parent := mustCreate(t, base.Store, &store.Task{
		Title: "parent", Status: store.StatusInProgress, ParentTaskID: grand.ID,
	})
	mustCreate(t, base.Store, &store.Task{
		Title: "sibling", Status: store.StatusDone, ParentTaskID: parent.ID,
	})
	last := mustCreate(t, base.Store, &store.Task{
		Title: "last", Status: store.StatusReview, ParentTaskID: parent.ID,
	})

	if err := r.Review(context.Background(), last.ID); err != nil {
		t.Fatalf("Review: %v", err)
	}

	if got := getTask(t, base.Store, parent.ID); got.Status != store.StatusDone {
		t.Errorf("parent status = %q, want done", got.Status)
	}
	if got := getTask(t, base.Store, grand.ID); got.Status != store.StatusDone {
		t.Errorf("grandparent status = %q, want done (cascade)", got.Status)
	}
}

func TestReviewerCascadeIdempotent(t *testing.T) {
	base := newTestBase(t, store.RoleReviewer, mock.New())
	r := NewReviewer(base)

	parent := mustCreate(t, base.Store, &store.Task{Title: "parent", Status: store.StatusDone})
	mustCreate(t, base.Store, &store.Task{
		Title: "child", Status: store.StatusDone, ParentTaskID: parent.ID,
	})

	before := getTask(t, base.Store, parent.ID)
	if err := r.cascadeParent(parent.ID); err != nil {
		t.Fatalf("cascadeParent: %v", err)
	}
	after := getTask(t, base.Store, parent.ID)
	if !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Error("already-done parent was rewritten by cascade")
	}
}

func TestReviewerCascadeWaitsForSiblings(t *testing.T) {
	mp := mock.New(`{"decision":"approve","reasoning":"good"}`)
	base := newTestBase(t, store.RoleReviewer, mp)
	r := NewReviewer(base)

	parent := mustCreate(t, base.Store, &store.Task{Title: "parent", Status: store.StatusInProgress})
	mustCreate(t, base.Store, &store.Task{
		Title: "open sibling", Status: store.StatusInProgress, ParentTaskID: parent.ID,
	})
	reviewed := mustCreate(t, base.Store, &store.Task{
		Title: "reviewed", Status: store.StatusReview, ParentTaskID: parent.ID,
	})

	if err := r.Review(context.Background(), reviewed.ID); err != nil {
		t.Fatalf("Review: %v", err)
	}
	if got := getTask(t, base.Store, parent.ID); got.Status != store.StatusInProgress {
		t.Errorf("parent status = %q, want in_progress while sibling open", got.Status)
	}
}
