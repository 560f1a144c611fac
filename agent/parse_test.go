package agent

import (
	"errors"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{"bare", `{"a":1}`, `{"a":1}`, true},
		{"prose around", "Sure! Here it is:\n{\"a\":1}\nHope that helps.", `{"a":1}`, true},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`, true},
		{"nested", `{"a":{"b":2}}`, `{"a":{"b":2}}`, true},
		{"brace in string", `{"a":"}"}`, `{"a":"}"}`, true},
		{"no json", "nothing here", "", false},
		{"unbalanced", `{"a":1`, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := extractJSON(tc.input)
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v", ok, tc.ok)
			}
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestParsePlan(t *testing.T) {
	tasks, err := parsePlan(`Here is the plan:
{"tasks":[{"title":"A","description":"do a","priority":2},{"title":"B"}]}`)
	if err != nil {
		t.Fatalf("parsePlan: %v", err)
	}
	if len(tasks) != 2 || tasks[0].Title != "A" || tasks[0].Priority != 2 {
		t.Errorf("tasks = %+v", tasks)
	}
}

func TestParsePlanMalformed(t *testing.T) {
	cases := []string{
		"no json at all",
		`{"tasks":[]}`,
		`{"other":true}`,
		`{"tasks":[{"description":"no title"}]}`,
	}
	for _, input := range cases {
		_, err := parsePlan(input)
		var malformed *MalformedError
		if !errors.As(err, &malformed) {
			t.Errorf("input %q: err = %v, want MalformedError", input, err)
		}
	}
}

func TestParseWorkStep(t *testing.T) {
	step, err := parseWorkStep(`{"thinking":"plan","actions":[{"tool":"shell","args":{"command":"ls"}}],"status":"working","summary":"listing"}`)
	if err != nil {
		t.Fatalf("parseWorkStep: %v", err)
	}
	if step.Status != "working" || len(step.Actions) != 1 || step.Actions[0].Tool != "shell" {
		t.Errorf("step = %+v", step)
	}
}

func TestParseWorkStepMissingStatus(t *testing.T) {
	_, err := parseWorkStep(`{"thinking":"hmm"}`)
	var malformed *MalformedError
	if !errors.As(err, &malformed) {
		t.Fatalf("err = %v, want MalformedError", err)
	}
}

func TestParseReview(t *testing.T) {
	d, err := parseReview(`{"decision":"reject","reasoning":"bugs","feedback":"fix the tests"}`)
	if err != nil {
		t.Fatalf("parseReview: %v", err)
	}
	if d.Decision != "reject" || d.Feedback != "fix the tests" {
		t.Errorf("decision = %+v", d)
	}

	_, err = parseReview(`{"decision":"maybe"}`)
	var malformed *MalformedError
	if !errors.As(err, &malformed) {
		t.Errorf("err = %v, want MalformedError for bad decision", err)
	}
}

func TestParseStrategy(t *testing.T) {
	content := `## Strategic Analysis
The market looks promising.

RESEARCH: competitor pricing models
RESEARCH: user retention benchmarks

## Sub-Tasks
- Title: Add pricing page
  Description: Design and build the pricing page
  Tags: [product, ux]
  Priority: 8
- Title: Churn analysis

Done for now. STRATEGIC_ANALYSIS_COMPLETE`

	actions := parseStrategy(content)
	if !actions.Complete {
		t.Error("expected Complete")
	}
	if len(actions.Research) != 2 || actions.Research[0] != "competitor pricing models" {
		t.Errorf("research = %v", actions.Research)
	}
	if len(actions.Subtasks) != 2 {
		t.Fatalf("subtasks = %+v, want 2", actions.Subtasks)
	}
	first := actions.Subtasks[0]
	if first.Title != "Add pricing page" || first.Priority != 8 {
		t.Errorf("first subtask = %+v", first)
	}
	if len(actions.Tags[0]) != 2 || actions.Tags[0][1] != "ux" {
		t.Errorf("tags = %v", actions.Tags[0])
	}
	// Defaults apply when fields are absent.
	if actions.Subtasks[1].Priority != 5 || actions.Tags[1][0] != "product" {
		t.Errorf("second subtask defaults = %+v tags=%v", actions.Subtasks[1], actions.Tags[1])
	}
}

func TestParseStrategyEmpty(t *testing.T) {
	actions := parseStrategy("just some prose with no directives")
	if actions.Complete || len(actions.Research) != 0 || len(actions.Subtasks) != 0 {
		t.Errorf("actions = %+v, want empty", actions)
	}
}
