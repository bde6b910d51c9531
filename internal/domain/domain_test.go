package domain

import (
	"testing"
	"time"
)

// --- TaskStatus Tests ---

func TestParseTaskStatus(t *testing.T) {
	tests := []struct {
		in   string
		want TaskStatus
		ok   bool
	}{
		{"pending", TaskStatusPending, true},
		{"processing", TaskStatusProcessing, true},
		{"completed", TaskStatusCompleted, true},
		{"failed", TaskStatusFailed, true},
		{"PENDING", "", false},
		{"", "", false},
		{"running", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseTaskStatus(tt.in)
			if ok != tt.ok {
				t.Fatalf("ParseTaskStatus(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("ParseTaskStatus(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to TaskStatus
		want     bool
	}{
		{TaskStatusPending, TaskStatusProcessing, true},
		{TaskStatusPending, TaskStatusCompleted, false},
		{TaskStatusProcessing, TaskStatusCompleted, true},
		{TaskStatusProcessing, TaskStatusFailed, true},
		{TaskStatusProcessing, TaskStatusPending, true},
		{TaskStatusCompleted, TaskStatusPending, false},
		{TaskStatusFailed, TaskStatusProcessing, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTask_IsFinished(t *testing.T) {
	task := &Task{Status: TaskStatusProcessing}
	if task.IsFinished() {
		t.Error("processing task should not be finished")
	}
	task.Status = TaskStatusFailed
	if !task.IsFinished() {
		t.Error("failed task should be finished")
	}
}

// --- TaskStats Tests ---

func TestTaskStats_SetRecomputesTotal(t *testing.T) {
	var stats TaskStats
	stats.Set(TaskStatusPending, 3)
	stats.Set(TaskStatusCompleted, 2)
	stats.Set(TaskStatusPending, 1)

	if stats.Pending != 1 || stats.Completed != 2 {
		t.Errorf("unexpected counters: %+v", stats)
	}
	if stats.Total != 3 {
		t.Errorf("expected total 3, got %d", stats.Total)
	}
}

// --- ExecutionResult Tests ---

func TestDurationMillis(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want int64
	}{
		{0, 0},
		{-time.Second, 0},
		{time.Microsecond, 1},
		{time.Millisecond, 1},
		{1500 * time.Microsecond, 2},
		{2 * time.Second, 2000},
	}

	for _, tt := range tests {
		if got := DurationMillis(tt.in); got != tt.want {
			t.Errorf("DurationMillis(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestExecutionResult_Outcome(t *testing.T) {
	r := &ExecutionResult{
		Success:    false,
		Error:      "boom",
		Result:     map[string]any{"final_url": "https://example.com"},
		DurationMs: 12,
	}

	o := r.Outcome()
	if o.Error != "boom" || o.DurationMs != 12 || o.Result["final_url"] != "https://example.com" {
		t.Errorf("unexpected outcome: %+v", o)
	}
}
