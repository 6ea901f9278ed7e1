package history

import (
	"strconv"
	"time"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
	StatusFailed Status = "failed"
)

type Record struct {
	ID              string     `json:"id"`
	AgentID         string     `json:"agent_id"`
	Status          Status     `json:"status"`
	Interruptions   int        `json:"interruptions"`
	LastInterruptID int        `json:"last_interrupt_id"`
	Reconnects      int        `json:"reconnects"`
	StartedAt       time.Time  `json:"started_at"`
	LastActiveAt    time.Time  `json:"last_active_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
}

func (r *Record) RedisKey() string {
	return RecordRedisKey(r.ID)
}

func RecordRedisKey(id string) string {
	return "conversation:" + id
}

type Metrics struct {
	AgentID       string `json:"agent_id"`
	Date          string `json:"date"`
	Hour          int    `json:"hour"`
	Conversations int64  `json:"conversations"`
	Interruptions int64  `json:"interruptions"`
	Reconnects    int64  `json:"reconnects"`
	Failures      int64  `json:"failures"`
}

func MetricsRedisKey(agentID, date string, hour int) string {
	return "agent:" + agentID + ":metrics:" + date + ":" + strconv.Itoa(hour)
}
