// Package notify is the toast-equivalent side channel: fire-and-forget
// notifications a client can poll for, logged through zap.
package notify

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Level classifies a notification.
type Level string

const (
	LevelError   Level = "error"
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
)

// Notification is one queued message for a user.
type Notification struct {
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Notifier is the fire-and-forget notification channel. No return
// values, no retries.
type Notifier interface {
	Error(userID, message string)
	Info(userID, message string)
	Success(userID, message string)
}

// maxPerUser bounds the per-user backlog; oldest entries are dropped.
const maxPerUser = 50

// Feed is the default Notifier: it logs every notification and retains a
// bounded per-user backlog that the API drains on poll.
type Feed struct {
	logger *zap.Logger

	mu    sync.Mutex
	queue map[string][]Notification
}

// NewFeed creates a notification feed.
func NewFeed(logger *zap.Logger) *Feed {
	return &Feed{
		logger: logger,
		queue:  make(map[string][]Notification),
	}
}

// Error queues an error notification.
func (f *Feed) Error(userID, message string) {
	f.logger.Warn("notification", zap.String("user_id", userID), zap.String("message", message))
	f.push(userID, LevelError, message)
}

// Info queues an informational notification.
func (f *Feed) Info(userID, message string) {
	f.logger.Info("notification", zap.String("user_id", userID), zap.String("message", message))
	f.push(userID, LevelInfo, message)
}

// Success queues a success notification.
func (f *Feed) Success(userID, message string) {
	f.logger.Info("notification", zap.String("user_id", userID), zap.String("message", message))
	f.push(userID, LevelSuccess, message)
}

// Drain returns and clears the backlog for a user.
func (f *Feed) Drain(userID string) []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := f.queue[userID]
	delete(f.queue, userID)
	return out
}

func (f *Feed) push(userID string, level Level, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	q := append(f.queue[userID], Notification{
		Level:     level,
		Message:   message,
		CreatedAt: time.Now(),
	})
	if len(q) > maxPerUser {
		q = q[len(q)-maxPerUser:]
	}
	f.queue[userID] = q
}
