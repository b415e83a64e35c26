// Package calendar answers "what kind of day is this?" for a user: holiday,
// approved leave, weekend, or a plain working day.
package calendar

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"shiftclock/internal/models"
	"shiftclock/internal/policy"
	"shiftclock/internal/utils"

	"github.com/sirupsen/logrus"
	"github.com/teambition/rrule-go"
	"gorm.io/gorm"
)

// DayInfo is one resolved calendar classification.
type DayInfo struct {
	Status string
	Remark string
}

// Service resolves calendar context from storage.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// HolidayOn returns the organization holiday matching the local date, either
// by its fixed date or by its recurrence rule.
func (s *Service) HolidayOn(orgID uint, day time.Time) (*models.Holiday, error) {
	var holidays []models.Holiday
	if err := s.db.Where("org_id = ?", orgID).Find(&holidays).Error; err != nil {
		return nil, fmt.Errorf("failed to load holidays: %w", err)
	}

	date := day.Format(utils.DateLayout)
	for i := range holidays {
		h := &holidays[i]
		if h.Recurrence == "" {
			if h.Date == date {
				return h, nil
			}
			continue
		}
		if recursOn(h, day) {
			return h, nil
		}
	}
	return nil, nil
}

// recursOn checks whether the holiday's RRULE produces an occurrence on the
// given local date. The stored Date is the series start.
func recursOn(h *models.Holiday, day time.Time) bool {
	rule, err := rrule.StrToRRule(h.Recurrence)
	if err != nil {
		logrus.WithError(err).WithField("holiday_id", h.ID).Warn("Invalid holiday recurrence rule")
		return false
	}
	start, err := time.ParseInLocation(utils.DateLayout, h.Date, day.Location())
	if err != nil {
		logrus.WithField("holiday_id", h.ID).Warn("Invalid holiday series start date")
		return false
	}
	rule.DTStart(start)

	dayStart, dayEnd := utils.DayBounds(day)
	return len(rule.Between(dayStart, dayEnd.Add(-time.Nanosecond), true)) > 0
}

// ApprovedLeaveOn returns the approved leave request covering the local
// date, if any.
func (s *Service) ApprovedLeaveOn(userID uint, day time.Time) (*models.LeaveRequest, error) {
	date := day.Format(utils.DateLayout)
	var leave models.LeaveRequest
	err := s.db.Where("user_id = ? AND status = ? AND start_date <= ? AND end_date >= ?",
		userID, models.LeaveStatusApproved, date, date).
		First(&leave).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load leave requests: %w", err)
	}
	return &leave, nil
}

// Classify resolves the day for a user with no attendance at all, in strict
// priority order: holiday, approved leave, non-working weekday, alternate
// Saturday off, absent.
func (s *Service) Classify(user *models.User, org *models.Organization, pol *policy.ShiftPolicy, day time.Time) (DayInfo, error) {
	holiday, err := s.HolidayOn(user.OrgID, day)
	if err != nil {
		return DayInfo{}, err
	}
	if holiday != nil {
		return DayInfo{Status: models.StatusHoliday, Remark: holiday.Name}, nil
	}

	leave, err := s.ApprovedLeaveOn(user.ID, day)
	if err != nil {
		return DayInfo{}, err
	}
	if leave != nil {
		return DayInfo{Status: models.StatusLeave, Remark: leaveRemark(leave)}, nil
	}

	if !pol.IsWorkingDay(day.Weekday()) {
		return DayInfo{Status: models.StatusWeekend}, nil
	}

	if day.Weekday() == time.Saturday && org != nil && org.AlternateSaturdays != "" {
		if !saturdayWorking(org.AlternateSaturdays, utils.SaturdayOrdinal(day)) {
			return DayInfo{Status: models.StatusWeekend, Remark: "Alternate Saturday off"}, nil
		}
	}

	return DayInfo{Status: models.StatusAbsent}, nil
}

// leaveRemark renders the leave type and pay terms for the day's record,
// e.g. "On leave (annual, paid)".
func leaveRemark(leave *models.LeaveRequest) string {
	terms := leave.Type
	if leave.PayType != "" {
		if terms != "" {
			terms += ", "
		}
		terms += leave.PayType
	}
	if terms == "" {
		return "On leave"
	}
	return "On leave (" + terms + ")"
}

// saturdayWorking reports whether the ordinal Saturday-of-month is in the
// configured working list, e.g. "1,3,5".
func saturdayWorking(configured string, ordinal int) bool {
	for _, part := range strings.Split(configured, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		if n == ordinal {
			return true
		}
	}
	return false
}
