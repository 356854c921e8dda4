package billing

import (
	"time"

	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/models"
)

// VerificationInfo is the independently confirmed baseline produced by the
// team-review workflow for one (project, user, week).
type VerificationInfo struct {
	VerifiedWorkedHours   float64
	ManagerAdjustment     float64
	VerifiedBillableHours float64
	VerifiedAt            time.Time
}

func verificationFromReview(r models.TimesheetReview) VerificationInfo {
	return VerificationInfo{
		VerifiedWorkedHours:   r.VerifiedWorkedHours,
		ManagerAdjustment:     r.ManagerAdjustment,
		VerifiedBillableHours: r.VerifiedBillableHours,
		VerifiedAt:            r.VerifiedAt,
	}
}

// EffectiveBillable merges the three billing sources under the precedence
// order: a verified baseline outranks raw sums, with any ledger delta applied
// on top of it as an additional correction; without verification the ledger
// delta is reapplied against the current worked-hours sum; with neither, the
// raw billable sum stands. Never negative.
func EffectiveBillable(rawWorked, rawBillable float64, adj *models.BillingAdjustment, v *VerificationInfo) float64 {
	if v != nil {
		base := v.VerifiedBillableHours
		if adj != nil {
			base += adj.AdjustmentHours
		}
		if base < 0 {
			return 0
		}
		return base
	}

	if adj != nil {
		total := rawWorked + adj.AdjustmentHours
		if total < 0 {
			return 0
		}
		return total
	}

	return rawBillable
}
