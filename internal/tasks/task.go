package tasks

import (
	"time"

	"github.com/google/uuid"
)

type TaskType string

const (
	TaskTypeUpdateFeed  TaskType = "update_feed"
	TaskTypeUpdateFeeds TaskType = "update_feeds"
)

// Task carries the identity and timing shared by every unit of work.
type Task struct {
	ID        string
	Type      TaskType
	FeedURL   string
	Force     bool
	StartedAt *time.Time
}

func NewTask(taskType TaskType, feedURL string, force bool) Task {
	return Task{
		ID:      uuid.NewString(),
		Type:    taskType,
		FeedURL: feedURL,
		Force:   force,
	}
}

func (t *Task) Start() {
	now := time.Now()
	t.StartedAt = &now
}

func (t *Task) GetDuration() time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	return time.Since(*t.StartedAt)
}
