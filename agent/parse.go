package agent

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// MalformedError reports a provider response that could not be interpreted.
// Callers detect it with errors.As and route the task to blocked or retry
// handling; any other error is a transport or store failure.
type MalformedError struct {
	Reason string
	Raw    string
}

func (e *MalformedError) Error() string {
	return "malformed response: " + e.Reason
}

// extractJSON returns the first balanced JSON object in s. Providers often
// wrap JSON in prose or markdown fences.
func extractJSON(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					candidate := s[start : i+1]
					if json.Valid([]byte(candidate)) {
						return candidate, true
					}
					return "", false
				}
			}
		}
	}
	return "", false
}

// PlannedTask is one entry of a goal decomposition.
type PlannedTask struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    int    `json:"priority"`
}

// parsePlan interprets a planner decomposition response:
// {"tasks": [{"title": ..., "description": ..., "priority": ...}]}.
func parsePlan(content string) ([]PlannedTask, error) {
	raw, ok := extractJSON(content)
	if !ok {
		return nil, &MalformedError{Reason: "no JSON object found", Raw: content}
	}
	var parsed struct {
		Tasks []PlannedTask `json:"tasks"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, &MalformedError{Reason: "invalid JSON: " + err.Error(), Raw: content}
	}
	if len(parsed.Tasks) == 0 {
		return nil, &MalformedError{Reason: "missing tasks array", Raw: content}
	}
	for i, t := range parsed.Tasks {
		if strings.TrimSpace(t.Title) == "" {
			return nil, &MalformedError{Reason: fmt.Sprintf("task %d has no title", i), Raw: content}
		}
	}
	return parsed.Tasks, nil
}

// blockDecision is a planner ruling on a blocked task.
type blockDecision struct {
	Action    string `json:"action"` // "retry", "cancel", "escalate"
	Reasoning string `json:"reasoning"`
}

func parseBlockDecision(content string) (*blockDecision, error) {
	raw, ok := extractJSON(content)
	if !ok {
		return nil, &MalformedError{Reason: "no JSON object found", Raw: content}
	}
	var d blockDecision
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, &MalformedError{Reason: "invalid JSON: " + err.Error(), Raw: content}
	}
	return &d, nil
}

// Action is a single tool invocation requested by the executor's reasoning.
type Action struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// workStep is one executor iteration result.
type workStep struct {
	Thinking string   `json:"thinking"`
	Actions  []Action `json:"actions"`
	Status   string   `json:"status"` // "working", "complete", "blocked"
	Summary  string   `json:"summary"`
}

func parseWorkStep(content string) (*workStep, error) {
	raw, ok := extractJSON(content)
	if !ok {
		return nil, &MalformedError{Reason: "no JSON object found", Raw: content}
	}
	var step workStep
	if err := json.Unmarshal([]byte(raw), &step); err != nil {
		return nil, &MalformedError{Reason: "invalid JSON: " + err.Error(), Raw: content}
	}
	if step.Status == "" {
		return nil, &MalformedError{Reason: "missing status field", Raw: content}
	}
	return &step, nil
}

// reviewDecision is the reviewer's verdict on a task.
type reviewDecision struct {
	Decision     string   `json:"decision"` // "approve" or "reject"
	Reasoning    string   `json:"reasoning"`
	Feedback     string   `json:"feedback"`
	Improvements []string `json:"improvements"`
}

func parseReview(content string) (*reviewDecision, error) {
	raw, ok := extractJSON(content)
	if !ok {
		return nil, &MalformedError{Reason: "no JSON object found", Raw: content}
	}
	var d reviewDecision
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, &MalformedError{Reason: "invalid JSON: " + err.Error(), Raw: content}
	}
	if d.Decision != "approve" && d.Decision != "reject" {
		return nil, &MalformedError{Reason: "decision must be approve or reject", Raw: content}
	}
	return &d, nil
}

// analysisComplete is the sentinel the strategist emits when its analysis
// is finished.
const analysisComplete = "STRATEGIC_ANALYSIS_COMPLETE"

// strategyActions are the directives extracted from a strategist response.
// The strategist's output is section-delimited prose, not JSON.
type strategyActions struct {
	Complete bool
	Research []string
	Subtasks []PlannedTask
	Tags     [][]string
}

var (
	researchLineRe = regexp.MustCompile(`(?m)^RESEARCH:\s*(.+)$`)
	subtasksRe     = regexp.MustCompile(`## Sub-Tasks([\s\S]*?)(?:##|$)`)
	descRe         = regexp.MustCompile(`Description:\s*(.+)`)
	tagsRe         = regexp.MustCompile(`Tags:\s*\[(.+)\]`)
	priorityRe     = regexp.MustCompile(`Priority:\s*(\d+)`)
)

func parseStrategy(content string) strategyActions {
	var actions strategyActions

	actions.Complete = strings.Contains(content, analysisComplete)

	for _, m := range researchLineRe.FindAllStringSubmatch(content, -1) {
		if q := strings.TrimSpace(m[1]); q != "" {
			actions.Research = append(actions.Research, q)
		}
	}

	if m := subtasksRe.FindStringSubmatch(content); m != nil {
		blocks := strings.Split(m[1], "- Title:")
		for _, block := range blocks[1:] {
			lines := strings.SplitN(block, "\n", 2)
			title := strings.TrimSpace(lines[0])
			if title == "" {
				title = "Untitled Task"
			}
			sub := PlannedTask{Title: title, Priority: 5}
			tags := []string{"product"}
			if dm := descRe.FindStringSubmatch(block); dm != nil {
				sub.Description = strings.TrimSpace(dm[1])
			}
			if tm := tagsRe.FindStringSubmatch(block); tm != nil {
				tags = tags[:0]
				for _, tag := range strings.Split(tm[1], ",") {
					tags = append(tags, strings.TrimSpace(tag))
				}
			}
			if pm := priorityRe.FindStringSubmatch(block); pm != nil {
				if p, err := strconv.Atoi(pm[1]); err == nil {
					sub.Priority = p
				}
			}
			actions.Subtasks = append(actions.Subtasks, sub)
			actions.Tags = append(actions.Tags, tags)
		}
	}

	return actions
}
