package models

import (
	"testing"
	"time"
)

func TestTaskStatusTransitions(t *testing.T) {
	tests := []struct {
		from    TaskStatus
		to      TaskStatus
		allowed bool
	}{
		{TaskStatusQueued, TaskStatusRunning, true},
		{TaskStatusQueued, TaskStatusFinished, false},
		{TaskStatusQueued, TaskStatusFailed, false},
		{TaskStatusRunning, TaskStatusFinished, true},
		{TaskStatusRunning, TaskStatusFailed, true},
		{TaskStatusRunning, TaskStatusQueued, false},
		{TaskStatusFinished, TaskStatusRunning, false},
		{TaskStatusFinished, TaskStatusFailed, false},
		{TaskStatusFailed, TaskStatusQueued, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.allowed {
			t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.allowed)
		}
	}
}

func TestTaskStatusIsTerminal(t *testing.T) {
	if TaskStatusQueued.IsTerminal() || TaskStatusRunning.IsTerminal() {
		t.Error("queued and running must not be terminal")
	}
	if !TaskStatusFinished.IsTerminal() || !TaskStatusFailed.IsTerminal() {
		t.Error("finished and failed must be terminal")
	}
}

func TestNewDownloadTask(t *testing.T) {
	task := NewDownloadTask("task_abc", "https://mangadex.org/title/xyz", time.Hour)

	if task.Status != TaskStatusQueued {
		t.Errorf("new task status = %s, want queued", task.Status)
	}
	if task.ExpiresAt.Sub(task.CreatedAt) != time.Hour {
		t.Errorf("expiry window = %s, want 1h", task.ExpiresAt.Sub(task.CreatedAt))
	}
	if task.IsExpired(task.CreatedAt.Add(30 * time.Minute)) {
		t.Error("task expired before its TTL elapsed")
	}
	if !task.IsExpired(task.CreatedAt.Add(2 * time.Hour)) {
		t.Error("task not expired after its TTL elapsed")
	}
	if !task.IsActive() {
		t.Error("new task must be active")
	}
}
