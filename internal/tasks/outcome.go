package tasks

import (
	"errors"
	"fmt"
	"time"
)

type Status string

const (
	StatusUpdated       Status = "updated"
	StatusUnchanged     Status = "unchanged"
	StatusSkippedLocked Status = "skipped-locked"
	StatusFailed        Status = "failed"
)

var (
	ErrFeedNotFound = errors.New("feed not found")
	ErrFeedDisabled = errors.New("feed is disabled")
)

// Outcome is the result of one update attempt for one feed. Err is set only
// when Status is StatusFailed.
type Outcome struct {
	FeedID   int64
	URL      string
	Status   Status
	Inserted int
	Duration time.Duration
	Err      error
}

func (o Outcome) Failed() bool {
	return o.Status == StatusFailed
}

// PersistError reports a storage failure while recording an update.
type PersistError struct {
	FeedID int64
	Err    error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("failed to persist feed %d: %v", e.FeedID, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}
