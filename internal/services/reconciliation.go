package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"shiftclock/internal/calendar"
	"shiftclock/internal/config"
	"shiftclock/internal/models"
	"shiftclock/internal/policy"
	"shiftclock/internal/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// reconcileHour is the local wall-clock hour at which a user's previous day
// is finalized.
const reconcileHour = 2

// ReconciliationService finalizes yesterday's attendance per user once their
// local clock passes 2 AM: dangling open sessions are auto-closed at shift
// end, and days with no record at all get a calendar classification.
type ReconciliationService struct {
	db              *gorm.DB
	settingsManager *config.SystemSettingsManager
	resolver        *policy.Resolver
	calendar        *calendar.Service
	dispatcher      *EventDispatcher
	stopCh          chan struct{}
	wg              sync.WaitGroup
}

func NewReconciliationService(
	db *gorm.DB,
	settingsManager *config.SystemSettingsManager,
	resolver *policy.Resolver,
	calendarService *calendar.Service,
	dispatcher *EventDispatcher,
) *ReconciliationService {
	return &ReconciliationService{
		db:              db,
		settingsManager: settingsManager,
		resolver:        resolver,
		calendar:        calendarService,
		dispatcher:      dispatcher,
		stopCh:          make(chan struct{}),
	}
}

// Start launches the sweep loop.
func (s *ReconciliationService) Start() {
	s.wg.Add(1)
	go s.run()
	logrus.Debug("Reconciliation service started")
}

// Stop stops the sweep gracefully.
func (s *ReconciliationService) Stop(ctx context.Context) {
	close(s.stopCh)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logrus.Info("ReconciliationService stopped gracefully.")
	case <-ctx.Done():
		logrus.Warn("ReconciliationService stop timed out.")
	}
}

func (s *ReconciliationService) run() {
	defer s.wg.Done()

	interval := time.Duration(s.settingsManager.GetSettings().SweepIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep(time.Now())
		case <-s.stopCh:
			return
		}
	}
}

// Sweep runs one reconciliation pass at the given reference instant. It is
// idempotent per (user, date) and safe to invoke repeatedly.
func (s *ReconciliationService) Sweep(now time.Time) {
	var users []models.User
	if err := s.db.Where("active = ?", true).Find(&users).Error; err != nil {
		logrus.WithError(err).Error("Reconciliation sweep failed to list users")
		return
	}

	swept := 0
	for i := range users {
		user := &users[i]
		if err := s.reconcileUser(user, now); err != nil {
			// Lock contention and timeouts resolve themselves by the
			// next run; only durable failures deserve a warning.
			if utils.IsTransientDBError(err) {
				logrus.WithError(err).WithField("user_id", user.ID).
					Debug("Transient failure reconciling user, retrying next sweep")
			} else {
				logrus.WithError(err).WithField("user_id", user.ID).
					Warn("Failed to reconcile user")
			}
			continue
		}
		swept++
	}
	logrus.WithField("users", swept).Debug("Reconciliation sweep finished")
}

func (s *ReconciliationService) reconcileUser(user *models.User, now time.Time) error {
	org := s.loadOrg(user.OrgID)
	loc := s.userLocation(user, org)

	local := now.In(loc)
	if local.Hour() != reconcileHour {
		return nil
	}

	yesterday := local.AddDate(0, 0, -1)
	return s.ReconcileDay(user, org, yesterday)
}

// ReconcileDay finalizes one local date for one user.
func (s *ReconciliationService) ReconcileDay(user *models.User, org *models.Organization, day time.Time) error {
	date := utils.LocalDate(day)

	shift := s.loadShift(user)
	pol := s.resolver.Resolve(shift, org)

	if err := s.closeDanglingSessions(user, pol, day); err != nil {
		return err
	}

	var daily models.DailyAttendance
	err := s.db.Where("user_id = ? AND date = ?", user.ID, date).First(&daily).Error
	if err == nil {
		// Row exists; the auto-close path above has already refreshed it.
		return nil
	}
	if err != gorm.ErrRecordNotFound {
		return fmt.Errorf("failed to load daily attendance: %w", err)
	}

	info, err := s.calendar.Classify(user, org, pol, day)
	if err != nil {
		return err
	}

	daily = models.DailyAttendance{
		UserID: user.ID,
		OrgID:  user.OrgID,
		Date:   date,
		Status: info.Status,
		Remark: info.Remark,
	}
	if err := s.db.Where("user_id = ? AND date = ?", user.ID, date).
		FirstOrCreate(&daily).Error; err != nil {
		return fmt.Errorf("failed to insert daily attendance: %w", err)
	}
	return nil
}

// closeDanglingSessions auto-closes any still-open session of the target day
// at the shift's end time and rolls the day up.
func (s *ReconciliationService) closeDanglingSessions(user *models.User, pol *policy.ShiftPolicy, day time.Time) error {
	date := utils.LocalDate(day)

	var open []models.AttendanceSession
	err := s.db.Where("user_id = ? AND date = ? AND state = ?",
		user.ID, date, models.SessionStateOpen).
		Find(&open).Error
	if err != nil {
		return fmt.Errorf("failed to load open sessions: %w", err)
	}
	if len(open) == 0 {
		return nil
	}

	endAt, err := utils.AtClock(date, pol.ShiftTiming.End, day.Location())
	if err != nil {
		return err
	}

	for i := range open {
		session := &open[i]
		closeAt := endAt
		// A punch after shift end closes at the punch itself, never
		// negative hours.
		if session.TimeIn != nil && closeAt.Before(*session.TimeIn) {
			closeAt = *session.TimeIn
		}
		hours := 0.0
		if session.TimeIn != nil {
			hours = closeAt.Sub(*session.TimeIn).Hours()
		}

		err := s.db.Transaction(func(tx *gorm.DB) error {
			result := tx.Model(&models.AttendanceSession{}).
				Where("id = ? AND state = ?", session.ID, models.SessionStateOpen).
				Updates(map[string]any{
					"state":        models.SessionStateClosed,
					"open_marker":  nil,
					"time_out":     closeAt,
					"status":       models.StatusPresent,
					"worked_hours": hours,
				})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				// Someone else closed it between the read and now.
				return nil
			}
			return s.rollUpDay(tx, user, pol, date, closeAt)
		})
		if err != nil {
			return err
		}

		s.dispatcher.Emit(Event{
			Type:      EventTypeAutoClosed,
			UserID:    user.ID,
			OrgID:     user.OrgID,
			SessionID: session.ID,
			Date:      date,
			Message:   "Session auto-closed at shift end",
		})
	}
	return nil
}

// rollUpDay recomputes the daily summary from the day's closed sessions
// after an auto-close.
func (s *ReconciliationService) rollUpDay(tx *gorm.DB, user *models.User, pol *policy.ShiftPolicy, date string, lastOut time.Time) error {
	var sessions []models.AttendanceSession
	err := tx.Where("user_id = ? AND date = ? AND state = ?",
		user.ID, date, models.SessionStateClosed).
		Order("time_in ASC").
		Find(&sessions).Error
	if err != nil {
		return err
	}

	totalHours := 0.0
	lateMinutes := 0
	for i := range sessions {
		sess := &sessions[i]
		if sess.TimeIn != nil && sess.TimeOut != nil {
			totalHours += sess.TimeOut.Sub(*sess.TimeIn).Hours()
		}
	}
	if len(sessions) > 0 {
		lateMinutes = sessions[0].LateMinutes
	}

	overtimeHours := 0.0
	if pol.Overtime.Enabled {
		overtimeHours = totalHours - pol.OvertimeThreshold()
		if overtimeHours < 0 {
			overtimeHours = 0
		}
	}

	daily := models.DailyAttendance{
		UserID: user.ID,
		OrgID:  user.OrgID,
		Date:   date,
	}
	if err := tx.Where("user_id = ? AND date = ?", user.ID, date).
		FirstOrCreate(&daily).Error; err != nil {
		return err
	}
	return tx.Model(&daily).Updates(map[string]any{
		"status":         models.StatusPresent,
		"auto_closed":    true,
		"remark":         "Auto-closed by reconciliation",
		"last_out":       lastOut,
		"worked_hours":   totalHours,
		"overtime_hours": overtimeHours,
		"late_minutes":   lateMinutes,
		"sessions_count": len(sessions),
	}).Error
}

func (s *ReconciliationService) loadOrg(orgID uint) *models.Organization {
	var org models.Organization
	if err := s.db.First(&org, orgID).Error; err != nil {
		return nil
	}
	return &org
}

func (s *ReconciliationService) loadShift(user *models.User) *models.Shift {
	if user.ShiftID == nil {
		return nil
	}
	var shift models.Shift
	if err := s.db.First(&shift, *user.ShiftID).Error; err != nil {
		return nil
	}
	return &shift
}

// userLocation resolves the sweep timezone: last session's captured zone,
// then the organization default, then the system default, then UTC.
func (s *ReconciliationService) userLocation(user *models.User, org *models.Organization) *time.Location {
	var last models.AttendanceSession
	err := s.db.Where("user_id = ?", user.ID).
		Order("created_at DESC").
		First(&last).Error

	candidates := []string{}
	if err == nil {
		candidates = append(candidates, last.Timezone)
	}
	if org != nil {
		candidates = append(candidates, org.Timezone)
	}
	candidates = append(candidates, s.settingsManager.GetSettings().DefaultTimezone)

	for _, name := range candidates {
		if name == "" {
			continue
		}
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	return time.UTC
}
