// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

import "time"

// TurnArchiveTask represents one finished question/answer turn to be archived.
type TurnArchiveTask struct {
	SessionID  string    `json:"session_id"`
	ThreadID   string    `json:"thread_id"`
	RunID      string    `json:"run_id"`
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	Failed     bool      `json:"failed"`
	AskedAt    time.Time `json:"asked_at"`
	AnsweredAt time.Time `json:"answered_at"`
}

// Key identifies the task for retry bookkeeping.
func (t TurnArchiveTask) Key() string {
	return t.SessionID + ":" + t.AskedAt.UTC().Format(time.RFC3339Nano)
}
