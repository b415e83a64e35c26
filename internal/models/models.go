package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Session lifecycle states
const (
	SessionStateOpen   = "open"
	SessionStateClosed = "closed"
)

// Attendance status constants. Session statuses come from the evaluator;
// the non-working day statuses are assigned by the reconciliation sweep.
const (
	StatusPresent           = "PRESENT"
	StatusLate              = "LATE"
	StatusHalfDay           = "HALF_DAY"
	StatusAbsent            = "ABSENT"
	StatusHoliday           = "HOLIDAY"
	StatusWeekend           = "WEEKEND"
	StatusLeave             = "LEAVE"
	StatusNotPunchedOut     = "NOT_PUNCHED_OUT"
	StatusLateNotPunchedOut = "LATE_NOT_PUNCHED_OUT"
)

// Leave request states
const (
	LeaveStatusPending  = "pending"
	LeaveStatusApproved = "approved"
	LeaveStatusRejected = "rejected"
)

// SystemSetting corresponds to the system_settings table.
type SystemSetting struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	SettingKey   string    `gorm:"type:varchar(255);not null;unique" json:"setting_key"`
	SettingValue string    `gorm:"type:text;not null" json:"setting_value"`
	Description  string    `gorm:"type:varchar(512)" json:"description"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Organization is the tenant. Its timezone is the fallback for users without
// a captured timezone, and its policy document applies to shifts that carry
// none of their own.
type Organization struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string `gorm:"type:varchar(255);not null;unique" json:"name"`
	Timezone  string `gorm:"type:varchar(64)" json:"timezone"`
	// AlternateSaturdays lists the working Saturday ordinals of the month,
	// e.g. "1,3,5". Saturdays off the list are non-working.
	AlternateSaturdays string         `gorm:"type:varchar(32)" json:"alternate_saturdays"`
	PolicyDoc          datatypes.JSON `gorm:"type:json" json:"policy_doc,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// Shift defines working hours and the attendance policy for its users.
type Shift struct {
	ID           uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrgID        uint           `gorm:"not null;index" json:"org_id"`
	Name         string         `gorm:"type:varchar(255);not null" json:"name"`
	StartClock   string         `gorm:"type:varchar(5);not null;default:'09:00'" json:"start_clock"`
	EndClock     string         `gorm:"type:varchar(5);not null;default:'18:00'" json:"end_clock"`
	GraceMinutes int            `gorm:"default:10" json:"grace_minutes"`
	PolicyDoc    datatypes.JSON `gorm:"type:json" json:"policy_doc,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// WorkLocation is a geofence center. A user bound to one or more locations
// must check in within radius of at least one of them.
type WorkLocation struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	OrgID        uint      `gorm:"not null;index" json:"org_id"`
	Name         string    `gorm:"type:varchar(255);not null" json:"name"`
	Latitude     float64   `gorm:"not null" json:"latitude"`
	Longitude    float64   `gorm:"not null" json:"longitude"`
	RadiusMeters float64   `gorm:"default:100" json:"radius_meters"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// User is an attendance subject.
type User struct {
	ID      uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	OrgID   uint   `gorm:"not null;index" json:"org_id"`
	Name    string `gorm:"type:varchar(255);not null" json:"name"`
	Email   string `gorm:"type:varchar(255);not null;unique" json:"email"`
	ShiftID *uint  `gorm:"index" json:"shift_id,omitempty"`
	// Inactive users keep their history but are skipped by the
	// reconciliation sweep.
	Active bool `gorm:"not null;default:true" json:"active"`
	// Timezone is captured from the device on check-in and takes priority
	// over the organization timezone for this user's local-day math.
	Timezone      string         `gorm:"type:varchar(64)" json:"timezone"`
	WorkLocations []WorkLocation `gorm:"many2many:user_work_locations" json:"work_locations,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// AttendanceSession is one time-in/time-out pair. A user may have several
// closed sessions per local date but at most one open one; the partial
// unique index on (user_id, open_marker) enforces the latter, because
// closed sessions carry a NULL marker which unique indexes ignore.
type AttendanceSession struct {
	ID         string  `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID     uint    `gorm:"not null;index:idx_session_user_date;uniqueIndex:idx_session_open" json:"user_id"`
	OrgID      uint    `gorm:"not null;index" json:"org_id"`
	Date       string  `gorm:"type:varchar(10);not null;index:idx_session_user_date" json:"date"`
	State      string  `gorm:"type:varchar(10);not null;default:'open'" json:"state"`
	OpenMarker *string `gorm:"type:varchar(10);uniqueIndex:idx_session_open" json:"-"`

	TimeIn   *time.Time `json:"time_in"`
	TimeOut  *time.Time `json:"time_out"`
	Timezone string     `gorm:"type:varchar(64)" json:"timezone"`

	InLatitude  float64 `json:"in_latitude"`
	InLongitude float64 `json:"in_longitude"`
	InAccuracy  float64 `json:"in_accuracy"`
	InAddress   string  `gorm:"type:varchar(512)" json:"in_address,omitempty"`
	InImagePath string  `gorm:"type:varchar(512)" json:"in_image_path,omitempty"`

	OutLatitude  float64 `json:"out_latitude"`
	OutLongitude float64 `json:"out_longitude"`
	OutAccuracy  float64 `json:"out_accuracy"`
	OutAddress   string  `gorm:"type:varchar(512)" json:"out_address,omitempty"`
	OutImagePath string  `gorm:"type:varchar(512)" json:"out_image_path,omitempty"`

	LateMinutes int     `json:"late_minutes"`
	IsLate      bool    `json:"is_late"`
	LateReason  string  `gorm:"type:varchar(512)" json:"late_reason,omitempty"`
	Status      string  `gorm:"type:varchar(32)" json:"status"`
	WorkedHours float64 `json:"worked_hours"`

	Metadata  datatypes.JSONMap `gorm:"type:json" json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// BeforeCreate assigns the session ID and open marker.
func (s *AttendanceSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.State == "" {
		s.State = SessionStateOpen
	}
	if s.State == SessionStateOpen && s.OpenMarker == nil {
		marker := s.Date
		s.OpenMarker = &marker
	}
	return nil
}

// DailyAttendance is the per-user per-local-date rollup row.
type DailyAttendance struct {
	ID            uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        uint       `gorm:"not null;uniqueIndex:idx_daily_user_date" json:"user_id"`
	OrgID         uint       `gorm:"not null;index" json:"org_id"`
	Date          string     `gorm:"type:varchar(10);not null;uniqueIndex:idx_daily_user_date" json:"date"`
	Status        string     `gorm:"type:varchar(32)" json:"status"`
	LateMinutes   int        `json:"late_minutes"`
	WorkedHours   float64    `json:"worked_hours"`
	OvertimeHours float64    `json:"overtime_hours"`
	SessionsCount int        `json:"sessions_count"`
	FirstIn       *time.Time `json:"first_in"`
	LastOut       *time.Time `json:"last_out"`
	AutoClosed    bool       `json:"auto_closed"`
	Remark        string     `gorm:"type:varchar(512)" json:"remark,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Holiday is either a fixed date or a recurring rule. Recurrence holds an
// RRULE string (e.g. FREQ=YEARLY;BYMONTH=1;BYMONTHDAY=1); when set, Date is
// the series start.
type Holiday struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	OrgID      uint      `gorm:"not null;index" json:"org_id"`
	Name       string    `gorm:"type:varchar(255);not null" json:"name"`
	Date       string    `gorm:"type:varchar(10);not null" json:"date"`
	Recurrence string    `gorm:"type:varchar(255)" json:"recurrence,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// LeaveRequest covers an inclusive local-date range. Only approved requests
// affect attendance classification.
type LeaveRequest struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	OrgID     uint      `gorm:"not null;index" json:"org_id"`
	Type      string    `gorm:"type:varchar(32)" json:"type"`
	PayType   string    `gorm:"type:varchar(16)" json:"pay_type,omitempty"`
	StartDate string    `gorm:"type:varchar(10);not null" json:"start_date"`
	EndDate   string    `gorm:"type:varchar(10);not null" json:"end_date"`
	Status    string    `gorm:"type:varchar(16);not null;default:'pending'" json:"status"`
	Reason    string    `gorm:"type:varchar(512)" json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
