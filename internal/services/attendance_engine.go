package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"shiftclock/internal/compliance"
	"shiftclock/internal/config"
	apperrors "shiftclock/internal/errors"
	"shiftclock/internal/geocoding"
	"shiftclock/internal/media"
	"shiftclock/internal/models"
	"shiftclock/internal/policy"
	"shiftclock/internal/rules"
	"shiftclock/internal/store"
	"shiftclock/internal/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Event types emitted by the engine.
const (
	EventTypeTimeIn     = "attendance.time_in"
	EventTypeTimeOut    = "attendance.time_out"
	EventTypeAutoClosed = "attendance.auto_closed"
)

// PunchRequest is the captured payload of a time-in or time-out call.
// Identity fields arrive already authenticated.
type PunchRequest struct {
	UserID     uint
	OrgID      uint
	Latitude   float64
	Longitude  float64
	Accuracy   float64
	Timezone   string
	LateReason string
	Image      []byte
	ClientIP   string
	DeviceID   string
	// At overrides the punch timestamp; zero means now. Tests and backfill
	// tooling set it, the HTTP layer never does.
	At time.Time
}

// TimeInResult is the structured outcome of a check-in attempt.
type TimeInResult struct {
	OK           bool   `json:"ok"`
	AttendanceID string `json:"attendance_id,omitempty"`
	LocalTime    string `json:"local_time,omitempty"`
	LateMinutes  int    `json:"late_minutes"`
	IsLate       bool   `json:"is_late"`
	Message      string `json:"message"`
	StatusCode   int    `json:"-"`
}

// TimeOutResult is the structured outcome of a check-out attempt.
type TimeOutResult struct {
	OK              bool    `json:"ok"`
	AttendanceID    string  `json:"attendance_id,omitempty"`
	Status          string  `json:"status,omitempty"`
	SessionHours    float64 `json:"session_hours"`
	TotalHoursToday float64 `json:"total_hours_today"`
	OvertimeHours   float64 `json:"overtime_hours"`
	Message         string  `json:"message"`
	StatusCode      int     `json:"-"`
}

// AttendanceEngine is the check-in/check-out state machine. All outcomes are
// structured results; only infrastructure failures surface as generic 500s.
type AttendanceEngine struct {
	db              *gorm.DB
	store           store.Store
	settingsManager *config.SystemSettingsManager
	resolver        *policy.Resolver
	geocoder        geocoding.Geocoder
	media           media.Store
	dispatcher      *EventDispatcher
}

func NewAttendanceEngine(
	db *gorm.DB,
	st store.Store,
	settingsManager *config.SystemSettingsManager,
	resolver *policy.Resolver,
	geocoder geocoding.Geocoder,
	mediaStore media.Store,
	dispatcher *EventDispatcher,
) *AttendanceEngine {
	return &AttendanceEngine{
		db:              db,
		store:           st,
		settingsManager: settingsManager,
		resolver:        resolver,
		geocoder:        geocoder,
		media:           mediaStore,
		dispatcher:      dispatcher,
	}
}

// ProcessTimeIn opens a new session for the user's local day.
func (e *AttendanceEngine) ProcessTimeIn(ctx context.Context, req PunchRequest) *TimeInResult {
	user, shift, org, err := e.loadActors(req.UserID)
	if err != nil {
		return timeInFail(http.StatusNotFound, "User not found")
	}

	loc := e.resolveLocation(req.Timezone, user, org)
	now := req.At
	if now.IsZero() {
		now = time.Now()
	}
	now = now.In(loc)
	date := utils.LocalDate(now)

	unlock, ok := e.acquireLock(req.UserID)
	if !ok {
		return timeInFail(http.StatusConflict, "Another punch for this user is in progress")
	}
	defer unlock()

	open, err := e.findOpenSession(req.UserID, date)
	if err != nil {
		logrus.WithError(err).Error("Failed to query open sessions")
		return timeInFail(http.StatusInternalServerError, "Something went wrong, please try again")
	}
	if open != nil {
		return timeInFail(http.StatusConflict, apperrors.ErrAlreadyTimedIn.Message)
	}

	sessCtx, err := BuildSessionContext(e.db, req.UserID, now, EventTimeIn)
	if err != nil {
		logrus.WithError(err).Error("Failed to build session context")
		return timeInFail(http.StatusInternalServerError, "Something went wrong, please try again")
	}

	pol := e.resolver.Resolve(shift, org)

	capture := compliance.Capture{
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Accuracy:  req.Accuracy,
		HasImage:  len(req.Image) > 0,
	}
	flags := compliance.SessionFlags{IsFirstSession: sessCtx.IsFirstSession}
	if gate := compliance.Evaluate(pol.EntryRequirements, capture, user.WorkLocations, flags); !gate.OK {
		return timeInFail(http.StatusUnprocessableEntity, gate.Reason)
	}

	var lateMinutes int
	var isLate bool
	if sessCtx.IsFirstSession {
		lateMinutes, isLate, err = lateArrival(pol, now)
		if err != nil {
			logrus.WithError(err).Warn("Unparseable shift timing, skipping late check")
		}
		if isLate && req.LateReason == "" {
			return timeInFail(http.StatusUnprocessableEntity,
				fmt.Sprintf("You are %d minutes late. A late reason is required to time in.", lateMinutes))
		}
	}

	address := e.reverseGeocode(ctx, req.Latitude, req.Longitude)

	session := &models.AttendanceSession{
		UserID:      req.UserID,
		OrgID:       user.OrgID,
		Date:        date,
		State:       models.SessionStateOpen,
		TimeIn:      &now,
		Timezone:    loc.String(),
		InLatitude:  req.Latitude,
		InLongitude: req.Longitude,
		InAccuracy:  req.Accuracy,
		InAddress:   address,
		LateMinutes: lateMinutes,
		IsLate:      isLate,
		LateReason:  req.LateReason,
		Metadata: datatypes.JSONMap{
			"in_accuracy": req.Accuracy,
			"client_ip":   req.ClientIP,
			"device_id":   req.DeviceID,
			"captured_at": now.Format(time.RFC3339),
			"in_context":  sessCtx.Variables(),
		},
	}

	err = e.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(session).Error; err != nil {
			return err
		}
		if sessCtx.IsFirstSession {
			seed := models.StatusNotPunchedOut
			if isLate {
				seed = models.StatusLateNotPunchedOut
			}
			daily := models.DailyAttendance{
				UserID:        req.UserID,
				OrgID:         user.OrgID,
				Date:          date,
				Status:        seed,
				LateMinutes:   lateMinutes,
				SessionsCount: 1,
				FirstIn:       &now,
			}
			if err := tx.Where("user_id = ? AND date = ?", req.UserID, date).
				FirstOrCreate(&daily).Error; err != nil {
				return err
			}
		} else {
			if err := tx.Model(&models.DailyAttendance{}).
				Where("user_id = ? AND date = ?", req.UserID, date).
				UpdateColumn("sessions_count", gorm.Expr("sessions_count + 1")).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if apperrors.IsDuplicateKey(err) {
			// The unique open-session index closed the race for us.
			return timeInFail(http.StatusConflict, apperrors.ErrAlreadyTimedIn.Message)
		}
		logrus.WithError(err).Error("Failed to persist time-in")
		return timeInFail(http.StatusInternalServerError, "Something went wrong, please try again")
	}

	e.attachImage(session, req.Image, EventTimeIn)

	e.dispatcher.Emit(Event{
		Type:      EventTypeTimeIn,
		UserID:    req.UserID,
		OrgID:     user.OrgID,
		SessionID: session.ID,
		Date:      date,
		Message:   fmt.Sprintf("%s timed in at %s", user.Name, now.Format("15:04")),
		Detail:    map[string]any{"late_minutes": lateMinutes, "is_late": isLate},
	})

	message := "Timed in successfully"
	if isLate {
		message = fmt.Sprintf("Timed in successfully, %d minutes late", lateMinutes)
	}
	return &TimeInResult{
		OK:           true,
		AttendanceID: session.ID,
		LocalTime:    now.Format(time.RFC3339),
		LateMinutes:  lateMinutes,
		IsLate:       isLate,
		Message:      message,
		StatusCode:   http.StatusCreated,
	}
}

// ProcessTimeOut closes the user's open session and finalizes the day-level
// rollup.
func (e *AttendanceEngine) ProcessTimeOut(ctx context.Context, req PunchRequest) *TimeOutResult {
	user, shift, org, err := e.loadActors(req.UserID)
	if err != nil {
		return timeOutFail(http.StatusNotFound, "User not found")
	}

	loc := e.resolveLocation(req.Timezone, user, org)
	now := req.At
	if now.IsZero() {
		now = time.Now()
	}
	now = now.In(loc)
	date := utils.LocalDate(now)

	unlock, ok := e.acquireLock(req.UserID)
	if !ok {
		return timeOutFail(http.StatusConflict, "Another punch for this user is in progress")
	}
	defer unlock()

	session, err := e.findOpenSession(req.UserID, date)
	if err != nil {
		logrus.WithError(err).Error("Failed to query open sessions")
		return timeOutFail(http.StatusInternalServerError, "Something went wrong, please try again")
	}
	if session == nil {
		return timeOutFail(http.StatusConflict, apperrors.ErrNoActiveSession.Message)
	}

	sessCtx, err := BuildSessionContext(e.db, req.UserID, now, EventTimeOut)
	if err != nil {
		logrus.WithError(err).Error("Failed to build session context")
		return timeOutFail(http.StatusInternalServerError, "Something went wrong, please try again")
	}

	pol := e.resolver.Resolve(shift, org)

	capture := compliance.Capture{
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Accuracy:  req.Accuracy,
		HasImage:  len(req.Image) > 0,
	}
	if gate := compliance.Evaluate(pol.ExitRequirements, capture, user.WorkLocations, compliance.SessionFlags{}); !gate.OK {
		return timeOutFail(http.StatusUnprocessableEntity, gate.Reason)
	}

	sessionHours := 0.0
	if session.TimeIn != nil {
		sessionHours = now.Sub(*session.TimeIn).Hours()
		if sessionHours < 0 {
			sessionHours = 0
		}
	}
	totalHours := sessCtx.TotalHoursToday + sessionHours

	dayLate, dayLateMinutes := firstSessionLateness(sessCtx.Sessions, session)
	status := e.evaluateStatus(pol, sessCtx, session, now, totalHours, dayLate, dayLateMinutes)

	overtimeHours := 0.0
	if pol.Overtime.Enabled {
		overtimeHours = totalHours - pol.OvertimeThreshold()
		if overtimeHours < 0 {
			overtimeHours = 0
		}
	}

	address := e.reverseGeocode(ctx, req.Latitude, req.Longitude)

	err = e.db.Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{
			"state":         models.SessionStateClosed,
			"open_marker":   nil,
			"time_out":      now,
			"out_latitude":  req.Latitude,
			"out_longitude": req.Longitude,
			"out_accuracy":  req.Accuracy,
			"out_address":   address,
			"status":        status,
			"worked_hours":  sessionHours,
		}
		result := tx.Model(&models.AttendanceSession{}).
			Where("id = ? AND state = ?", session.ID, models.SessionStateOpen).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return apperrors.ErrNoActiveSession
		}

		return tx.Model(&models.DailyAttendance{}).
			Where("user_id = ? AND date = ?", req.UserID, date).
			Updates(map[string]any{
				"status":         status,
				"last_out":       now,
				"worked_hours":   totalHours,
				"overtime_hours": overtimeHours,
				"late_minutes":   dayLateMinutes,
			}).Error
	})
	if err != nil {
		if err == apperrors.ErrNoActiveSession {
			return timeOutFail(http.StatusConflict, apperrors.ErrNoActiveSession.Message)
		}
		logrus.WithError(err).Error("Failed to persist time-out")
		return timeOutFail(http.StatusInternalServerError, "Something went wrong, please try again")
	}

	e.attachImage(session, req.Image, EventTimeOut)

	e.dispatcher.Emit(Event{
		Type:      EventTypeTimeOut,
		UserID:    req.UserID,
		OrgID:     user.OrgID,
		SessionID: session.ID,
		Date:      date,
		Message:   fmt.Sprintf("%s timed out at %s", user.Name, now.Format("15:04")),
		Detail: map[string]any{
			"status":         status,
			"session_hours":  sessionHours,
			"total_hours":    totalHours,
			"overtime_hours": overtimeHours,
		},
	})

	return &TimeOutResult{
		OK:              true,
		AttendanceID:    session.ID,
		Status:          status,
		SessionHours:    sessionHours,
		TotalHoursToday: totalHours,
		OvertimeHours:   overtimeHours,
		Message:         "Timed out successfully",
		StatusCode:      http.StatusOK,
	}
}

// evaluateStatus picks the rule-based or simplified path per policy mode.
func (e *AttendanceEngine) evaluateStatus(
	pol *policy.ShiftPolicy,
	sessCtx *SessionContext,
	session *models.AttendanceSession,
	now time.Time,
	totalHours float64,
	dayLate bool,
	dayLateMinutes int,
) string {
	if !pol.RuleBased() {
		if dayLate {
			return models.StatusLate
		}
		return models.StatusPresent
	}

	vars := sessCtx.Variables()
	vars["total_hours_today"] = totalHours
	vars["is_late"] = dayLate
	vars["late_minutes"] = dayLateMinutes
	vars["checkout_hour"] = now.Hour()
	if session.TimeIn != nil {
		vars["checkin_hour"] = session.TimeIn.Hour()
	}
	return rules.EvaluateStatus(pol.StatusRules, vars)
}

// firstSessionLateness finds the day's first-session late flag. The session
// being closed may itself be the first one and is not in the rebuilt context
// list when it was the only session, so it is consulted too.
func firstSessionLateness(sessions []models.AttendanceSession, current *models.AttendanceSession) (bool, int) {
	if len(sessions) > 0 {
		return sessions[0].IsLate, sessions[0].LateMinutes
	}
	return current.IsLate, current.LateMinutes
}

// lateArrival computes the first-session late fields against the policy's
// shift start.
func lateArrival(pol *policy.ShiftPolicy, arrival time.Time) (int, bool, error) {
	startMinutes, err := utils.MinutesOfDay(pol.ShiftTiming.Start)
	if err != nil {
		return 0, false, err
	}
	lateMinutes := utils.TimeMinutesOfDay(arrival) - startMinutes
	if lateMinutes < 0 {
		lateMinutes = 0
	}
	return lateMinutes, lateMinutes > pol.GracePeriodMinutes, nil
}

func (e *AttendanceEngine) loadActors(userID uint) (*models.User, *models.Shift, *models.Organization, error) {
	var user models.User
	if err := e.db.Preload("WorkLocations").First(&user, userID).Error; err != nil {
		return nil, nil, nil, err
	}

	var shift *models.Shift
	if user.ShiftID != nil {
		var s models.Shift
		if err := e.db.First(&s, *user.ShiftID).Error; err == nil {
			shift = &s
		}
	}

	var org *models.Organization
	var o models.Organization
	if err := e.db.First(&o, user.OrgID).Error; err == nil {
		org = &o
	}
	return &user, shift, org, nil
}

// resolveLocation picks the punch timezone: request capture, then the user's
// last known, then the organization default, then the system default, then
// UTC.
func (e *AttendanceEngine) resolveLocation(requested string, user *models.User, org *models.Organization) *time.Location {
	candidates := []string{requested}
	if user != nil {
		candidates = append(candidates, user.Timezone)
	}
	if org != nil {
		candidates = append(candidates, org.Timezone)
	}
	candidates = append(candidates, e.settingsManager.GetSettings().DefaultTimezone)

	for _, name := range candidates {
		if name == "" {
			continue
		}
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
		logrus.WithField("timezone", name).Warn("Unknown timezone, trying next candidate")
	}
	return time.UTC
}

func (e *AttendanceEngine) findOpenSession(userID uint, date string) (*models.AttendanceSession, error) {
	var session models.AttendanceSession
	err := e.db.Where("user_id = ? AND date = ? AND state = ?",
		userID, date, models.SessionStateOpen).
		First(&session).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// acquireLock takes the per-user punch lock in the store. The unique open
// session index remains the storage-level backstop if two nodes race on
// different stores.
func (e *AttendanceEngine) acquireLock(userID uint) (func(), bool) {
	key := fmt.Sprintf("attendance:punch_lock:%d", userID)
	ttl := time.Duration(e.settingsManager.GetSettings().SessionLockTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 10 * time.Second
	}

	ok, err := e.store.SetNX(key, []byte("1"), ttl)
	if err != nil {
		logrus.WithError(err).Warn("Punch lock unavailable, relying on unique index")
		return func() {}, true
	}
	if !ok {
		return nil, false
	}
	return func() {
		if err := e.store.Delete(key); err != nil {
			logrus.WithError(err).Debug("Failed to release punch lock")
		}
	}, true
}

// reverseGeocode resolves the display address with a bounded timeout.
func (e *AttendanceEngine) reverseGeocode(ctx context.Context, lat, lng float64) string {
	timeout := time.Duration(e.settingsManager.GetSettings().GeocodeTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	gctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return e.geocoder.ReverseGeocode(gctx, lat, lng)
}

// attachImage stores the capture image and links it to the session.
// Best-effort: a failure is logged and the committed punch stands.
func (e *AttendanceEngine) attachImage(session *models.AttendanceSession, image []byte, kind string) {
	if len(image) == 0 {
		return
	}
	key, err := e.media.Save(image, session.UserID, kind)
	if err != nil {
		logrus.WithError(err).WithField("session_id", session.ID).
			Warn("Failed to store capture image")
		return
	}

	column := "in_image_path"
	if kind == EventTimeOut {
		column = "out_image_path"
	}
	if err := e.db.Model(&models.AttendanceSession{}).
		Where("id = ?", session.ID).
		UpdateColumn(column, key).Error; err != nil {
		logrus.WithError(err).WithField("session_id", session.ID).
			Warn("Failed to link capture image")
	}
}

func timeInFail(code int, message string) *TimeInResult {
	return &TimeInResult{Message: message, StatusCode: code}
}

func timeOutFail(code int, message string) *TimeOutResult {
	return &TimeOutResult{Message: message, StatusCode: code}
}
