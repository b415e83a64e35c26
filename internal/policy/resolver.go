package policy

import (
	"shiftclock/internal/models"

	"github.com/sirupsen/logrus"
)

// Resolver picks the effective policy for a shift: the shift's own document,
// else the organization's, else the built-in default overlaid with the
// shift's relational timing columns. A document that fails to parse is
// logged and skipped rather than treated as a hard error, so attendance
// keeps working on the default policy.
type Resolver struct{}

func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve returns the effective policy. Both arguments may be nil.
func (r *Resolver) Resolve(shift *models.Shift, org *models.Organization) *ShiftPolicy {
	if shift != nil && len(shift.PolicyDoc) > 0 {
		p, err := Parse(shift.PolicyDoc)
		if err == nil {
			return p
		}
		logrus.WithError(err).WithField("shift_id", shift.ID).
			Warn("Shift policy document invalid, falling back")
	}

	if org != nil && len(org.PolicyDoc) > 0 {
		p, err := Parse(org.PolicyDoc)
		if err == nil {
			return p
		}
		logrus.WithError(err).WithField("org_id", org.ID).
			Warn("Organization policy document invalid, falling back")
	}

	p := Default()
	if shift != nil {
		if shift.StartClock != "" {
			p.ShiftTiming.Start = shift.StartClock
		}
		if shift.EndClock != "" {
			p.ShiftTiming.End = shift.EndClock
		}
		if shift.GraceMinutes > 0 {
			p.GracePeriodMinutes = shift.GraceMinutes
		}
	}
	return p
}
