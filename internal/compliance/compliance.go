// Package compliance runs the entry/exit gates a capture event must pass
// before the session engine touches state.
package compliance

import (
	"fmt"
	"math"
	"strings"

	"shiftclock/internal/geofence"
	"shiftclock/internal/models"
	"shiftclock/internal/policy"
)

// MaxAccuracyMeters is the worst GPS accuracy accepted for any capture.
const MaxAccuracyMeters = 200.0

// Capture is the raw event payload the gate inspects.
type Capture struct {
	Latitude  float64
	Longitude float64
	// Accuracy is the reported GPS accuracy radius in meters. Zero or
	// negative means the device did not report one.
	Accuracy float64
	HasImage bool
}

// SessionFlags is the slice of session context the gate needs.
type SessionFlags struct {
	IsFirstSession bool
	IsLastSession  bool
}

// Result is one check's outcome.
type Result struct {
	OK     bool
	Reason string
}

func pass() Result         { return Result{OK: true} }
func fail(r string) Result { return Result{Reason: r} }

// CheckLocation validates coordinates, accuracy, and the geofence.
func CheckLocation(req policy.GeolocationRequirement, capture Capture, locations []models.WorkLocation) Result {
	if !isFinite(capture.Latitude) || !isFinite(capture.Longitude) {
		return fail("Invalid coordinates: latitude and longitude must be finite numbers")
	}
	if capture.Accuracy <= 0 {
		return fail("Location accuracy was not reported by the device")
	}
	if capture.Accuracy > MaxAccuracyMeters {
		return fail(fmt.Sprintf("Location accuracy %.0fm is worse than the allowed %.0fm", capture.Accuracy, MaxAccuracyMeters))
	}
	if req.Required && req.Geofence.Required {
		result := geofence.Check(capture.Latitude, capture.Longitude, locations)
		if !result.Within {
			return fail(fmt.Sprintf("You are %.0fm away from your nearest work location", result.DistanceMeters))
		}
	}
	return pass()
}

// CheckBiometric validates the selfie requirement. OnlyOn narrows the
// requirement to specific sessions of the day; an empty list means every
// session needs one.
func CheckBiometric(req policy.SelfieRequirement, capture Capture, flags SessionFlags) Result {
	if !req.Required {
		return pass()
	}
	if len(req.OnlyOn) > 0 && !selfieApplies(req.OnlyOn, flags) {
		return pass()
	}
	if !capture.HasImage {
		return fail("A selfie image is required for this punch")
	}
	return pass()
}

func selfieApplies(onlyOn []string, flags SessionFlags) bool {
	for _, when := range onlyOn {
		switch when {
		case policy.OnlyOnFirstSession:
			if flags.IsFirstSession {
				return true
			}
		case policy.OnlyOnLastSession:
			if flags.IsLastSession {
				return true
			}
		}
	}
	return false
}

// Evaluate runs both gates for one direction and aggregates every failing
// reason. The operation proceeds only when all checks pass; a partial
// check-in is never applied.
func Evaluate(req policy.Requirements, capture Capture, locations []models.WorkLocation, flags SessionFlags) Result {
	var reasons []string

	if r := CheckLocation(req.Geolocation, capture, locations); !r.OK {
		reasons = append(reasons, r.Reason)
	}
	if r := CheckBiometric(req.Selfie, capture, flags); !r.OK {
		reasons = append(reasons, r.Reason)
	}

	if len(reasons) > 0 {
		return fail("Policy Violation: " + strings.Join(reasons, "; "))
	}
	return pass()
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
