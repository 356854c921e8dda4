package billing_test

import (
	"testing"

	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/billing"
	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/models"
)

func TestEffectiveBillablePrecedence(t *testing.T) {
	adj := func(delta float64) *models.BillingAdjustment {
		return &models.BillingAdjustment{AdjustmentHours: delta}
	}
	ver := func(billable float64) *billing.VerificationInfo {
		return &billing.VerificationInfo{VerifiedBillableHours: billable}
	}

	tests := []struct {
		name        string
		rawWorked   float64
		rawBillable float64
		adj         *models.BillingAdjustment
		ver         *billing.VerificationInfo
		want        float64
	}{
		{"raw sums only", 35, 33, nil, nil, 33},
		{"delta reapplied against worked hours", 35, 33, adj(-5), nil, 30},
		{"verified baseline outranks raw sums", 35, 35, nil, ver(32), 32},
		{"delta stacks on the verified baseline", 35, 35, adj(-2), ver(32), 30},
		{"verified floor at zero", 10, 10, adj(-15), ver(4), 0},
		{"unverified floor at zero", 10, 10, adj(-15), nil, 0},
		{"positive delta can exceed worked hours", 35, 35, adj(5), nil, 40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := billing.EffectiveBillable(tt.rawWorked, tt.rawBillable, tt.adj, tt.ver)
			if got != tt.want {
				t.Errorf("EffectiveBillable(%v, %v) = %v, want %v", tt.rawWorked, tt.rawBillable, got, tt.want)
			}
		})
	}
}
