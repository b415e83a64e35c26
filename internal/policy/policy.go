// Package policy models the per-shift attendance policy document and its
// resolution with fallback to the built-in default.
package policy

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"shiftclock/internal/rules"

	"github.com/go-playground/validator/v10"
	"github.com/tidwall/gjson"
)

// Policy evaluation modes. An empty Mode means rule-based when StatusRules
// is non-empty, simplified otherwise.
const (
	ModeSimplified = "simplified"
	ModeRuleBased  = "rule_based"
)

// Selfie only_on selectors
const (
	OnlyOnFirstSession = "first_session"
	OnlyOnLastSession  = "last_session"
)

// DefaultOvertimeThresholdHours applies when a policy enables overtime
// without a threshold.
const DefaultOvertimeThresholdHours = 8.0

// ShiftTiming is the scheduled working window in HH:MM clock strings.
type ShiftTiming struct {
	Start string `json:"start" validate:"required,len=5"`
	End   string `json:"end" validate:"required,len=5"`
}

// Overtime configures the daily overtime calculation.
type Overtime struct {
	Enabled        bool    `json:"enabled"`
	ThresholdHours float64 `json:"threshold_hours" validate:"gte=0"`
}

// GeofenceRequirement nests under geolocation.
type GeofenceRequirement struct {
	Required bool `json:"required"`
}

// GeolocationRequirement controls coordinate capture and geofencing.
type GeolocationRequirement struct {
	Required bool                `json:"required"`
	Geofence GeofenceRequirement `json:"geofence"`
}

// SelfieRequirement controls the biometric capture. OnlyOn restricts the
// requirement to specific sessions of the day; empty means every session.
type SelfieRequirement struct {
	Required bool     `json:"required"`
	OnlyOn   []string `json:"only_on,omitempty" validate:"dive,oneof=first_session last_session"`
}

// Requirements is one direction's compliance bundle (entry or exit).
type Requirements struct {
	Geolocation GeolocationRequirement `json:"geolocation"`
	Selfie      SelfieRequirement      `json:"selfie"`
}

// ShiftPolicy is the parsed, validated policy document of a shift.
type ShiftPolicy struct {
	Version            int          `json:"version" validate:"gte=0"`
	Mode               string       `json:"mode,omitempty" validate:"omitempty,oneof=simplified rule_based"`
	ShiftTiming        ShiftTiming  `json:"shift_timing" validate:"required"`
	GracePeriodMinutes int          `json:"grace_period_minutes" validate:"gte=0"`
	Overtime           Overtime     `json:"overtime"`
	EntryRequirements  Requirements `json:"entry_requirements"`
	ExitRequirements   Requirements `json:"exit_requirements"`
	// WorkingDays lists the scheduled weekdays in lowercase. Empty means
	// the default Monday through Saturday week; Saturdays may still be
	// switched off per-organization by the alternate-Saturday list.
	WorkingDays []string     `json:"working_days,omitempty" validate:"dive,oneof=monday tuesday wednesday thursday friday saturday sunday"`
	StatusRules []rules.Expr `json:"status_rules,omitempty"`
}

// IsWorkingDay reports whether the weekday is in the policy's working set.
func (p *ShiftPolicy) IsWorkingDay(weekday time.Weekday) bool {
	days := p.WorkingDays
	if len(days) == 0 {
		return weekday != time.Sunday
	}
	name := strings.ToLower(weekday.String())
	for _, d := range days {
		if d == name {
			return true
		}
	}
	return false
}

// RuleBased reports whether check-out status should run through the rule
// evaluator rather than the simplified late-or-present path.
func (p *ShiftPolicy) RuleBased() bool {
	switch p.Mode {
	case ModeRuleBased:
		return true
	case ModeSimplified:
		return false
	}
	return len(p.StatusRules) > 0
}

// OvertimeThreshold returns the effective overtime threshold in hours.
func (p *ShiftPolicy) OvertimeThreshold() float64 {
	if p.Overtime.ThresholdHours > 0 {
		return p.Overtime.ThresholdHours
	}
	return DefaultOvertimeThresholdHours
}

var validate = validator.New()

// Parse decodes and validates a policy document. The document must at least
// carry a shift_timing object; anything else falls back to zero values.
func Parse(doc []byte) (*ShiftPolicy, error) {
	if len(doc) == 0 {
		return nil, fmt.Errorf("empty policy document")
	}
	if !gjson.ValidBytes(doc) {
		return nil, fmt.Errorf("policy document is not valid JSON")
	}
	if !gjson.GetBytes(doc, "shift_timing").Exists() {
		return nil, fmt.Errorf("policy document has no shift_timing")
	}

	var p ShiftPolicy
	if err := json.Unmarshal(doc, &p); err != nil {
		return nil, fmt.Errorf("failed to parse policy document: %w", err)
	}
	if err := validate.Struct(&p); err != nil {
		return nil, fmt.Errorf("policy document failed validation: %w", err)
	}
	return &p, nil
}

// Default returns the built-in "strict shift" policy used when a shift (and
// its organization) carries no policy document. It is constructed fresh per
// call and must never be written back to storage.
func Default() *ShiftPolicy {
	return &ShiftPolicy{
		Version:            1,
		Mode:               ModeRuleBased,
		ShiftTiming:        ShiftTiming{Start: "09:00", End: "18:00"},
		GracePeriodMinutes: 10,
		Overtime:           Overtime{Enabled: true, ThresholdHours: 8},
		EntryRequirements: Requirements{
			Geolocation: GeolocationRequirement{
				Required: true,
				Geofence: GeofenceRequirement{Required: true},
			},
			Selfie: SelfieRequirement{Required: true},
		},
		ExitRequirements: Requirements{
			Geolocation: GeolocationRequirement{
				Required: true,
				Geofence: GeofenceRequirement{Required: true},
			},
			Selfie: SelfieRequirement{Required: false},
		},
		StatusRules: defaultStatusRules(),
	}
}

// defaultStatusRules builds the simple hour-threshold ladder of the strict
// shift policy: under 4 hours is ABSENT, under 8 is HALF_DAY, a late first
// session makes the day LATE, anything else is PRESENT.
func defaultStatusRules() []rules.Expr {
	doc := `[
		{"if": [{"<": [{"var": "total_hours_today"}, 4]}, "ABSENT"]},
		{"if": [{"<": [{"var": "total_hours_today"}, 8]}, "HALF_DAY"]},
		{"if": [{"==": [{"var": "is_late"}, true]}, "LATE"]},
		{"if": [true, "PRESENT"]}
	]`
	var exprs []rules.Expr
	if err := json.Unmarshal([]byte(doc), &exprs); err != nil {
		panic(fmt.Sprintf("invalid built-in status rules: %v", err))
	}
	return exprs
}
