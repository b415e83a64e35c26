package services

import (
	"fmt"
	"time"

	"shiftclock/internal/models"
	"shiftclock/internal/utils"

	"gorm.io/gorm"
)

// Event directions fed to the context builder and rule evaluator.
const (
	EventTimeIn  = "time_in"
	EventTimeOut = "time_out"
)

// SessionContext is the ephemeral per-call snapshot of a user's day. It is
// rebuilt from storage on every punch and never cached.
type SessionContext struct {
	EventType      string `json:"event_type"`
	IsFirstSession bool   `json:"is_first_session"`
	// IsLastSession is always false at punch time; nothing can know mid-day
	// that no further session will follow. Rules about the last session
	// belong to the reconciliation sweep.
	IsLastSession   bool                       `json:"is_last_session"`
	SessionNumber   int                        `json:"session_number"`
	TotalHoursToday float64                    `json:"total_hours_today"`
	FirstTimeIn     *time.Time                 `json:"first_time_in"`
	LastTimeOut     *time.Time                 `json:"last_time_out"`
	Sessions        []models.AttendanceSession `json:"-"`
}

// Variables flattens the context into the rule evaluator's namespace.
func (c *SessionContext) Variables() map[string]any {
	return map[string]any{
		"event_type":        c.EventType,
		"is_first_session":  c.IsFirstSession,
		"is_last_session":   c.IsLastSession,
		"session_number":    c.SessionNumber,
		"total_hours_today": c.TotalHoursToday,
	}
}

// BuildSessionContext loads every session of the user's local calendar day,
// ordered by time_in, and computes the aggregates. Only closed sessions
// contribute hours; the session being opened or closed by the current call
// is not in storage yet (or not yet closed) and so never double-counts.
func BuildSessionContext(db *gorm.DB, userID uint, localTime time.Time, eventType string) (*SessionContext, error) {
	date := utils.LocalDate(localTime)

	var sessions []models.AttendanceSession
	err := db.Where("user_id = ? AND date = ?", userID, date).
		Order("time_in ASC").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load today's sessions: %w", err)
	}

	ctx := &SessionContext{
		EventType:      eventType,
		IsFirstSession: len(sessions) == 0,
		SessionNumber:  len(sessions) + 1,
		Sessions:       sessions,
	}

	for i := range sessions {
		s := &sessions[i]
		if s.State == models.SessionStateClosed && s.TimeIn != nil && s.TimeOut != nil {
			ctx.TotalHoursToday += s.TimeOut.Sub(*s.TimeIn).Hours()
		}
		if s.TimeIn != nil && ctx.FirstTimeIn == nil {
			ctx.FirstTimeIn = s.TimeIn
		}
		if s.TimeOut != nil {
			ctx.LastTimeOut = s.TimeOut
		}
	}
	return ctx, nil
}
