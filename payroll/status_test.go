package payroll_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fleetline/payroll-engine/payroll"
)

// =============================================================================
// FORWARD ADAPTERS (source -> unified)
// =============================================================================

func TestStatusFromTripPay(t *testing.T) {
	cases := []struct {
		in   payroll.TripPayStatus
		want payroll.Status
	}{
		{payroll.TripPayPending, payroll.StatusPending},
		{payroll.TripPayCalculated, payroll.StatusCalculated},
		{payroll.TripPayReviewed, payroll.StatusReviewed},
		{payroll.TripPayApproved, payroll.StatusApproved},
		{payroll.TripPayPaid, payroll.StatusPaid},
		{payroll.TripPayDisputed, payroll.StatusDisputed},
	}
	for _, c := range cases {
		got, ok := payroll.StatusFromTripPay(c.in)
		assert.True(t, ok, "%s should map", c.in)
		assert.Equal(t, c.want, got)
	}
}

func TestStatusFromTripPay_UnmappedDefaultsToPending(t *testing.T) {
	// Translation never hard-fails: an unknown source status lands on
	// PENDING with ok=false so the caller can log and carry on.

	got, ok := payroll.StatusFromTripPay("SHREDDED")
	assert.False(t, ok)
	assert.Equal(t, payroll.StatusPending, got)
}

func TestStatusFromCutPay(t *testing.T) {
	cases := []struct {
		in   payroll.CutPayStatus
		want payroll.Status
	}{
		{payroll.CutPayPending, payroll.StatusPending},
		{payroll.CutPayApproved, payroll.StatusApproved},
		{payroll.CutPayRejected, payroll.StatusDisputed},
		{payroll.CutPayPaid, payroll.StatusPaid},
	}
	for _, c := range cases {
		got, ok := payroll.StatusFromCutPay(c.in)
		assert.True(t, ok, "%s should map", c.in)
		assert.Equal(t, c.want, got)
	}

	got, ok := payroll.StatusFromCutPay("VOIDED")
	assert.False(t, ok)
	assert.Equal(t, payroll.StatusPending, got)
}

// =============================================================================
// WRITE-BACK ADAPTERS (unified -> source)
// =============================================================================

func TestToTripPayStatus(t *testing.T) {
	cases := []struct {
		in   payroll.Status
		want payroll.TripPayStatus
		ok   bool
	}{
		{payroll.StatusPending, payroll.TripPayPending, true},
		{payroll.StatusCalculated, payroll.TripPayCalculated, true},
		{payroll.StatusReviewed, payroll.TripPayReviewed, true},
		{payroll.StatusApproved, payroll.TripPayApproved, true},
		{payroll.StatusPaid, payroll.TripPayPaid, true},
		{payroll.StatusDisputed, payroll.TripPayDisputed, true},
		// CANCELLED survives only on the projection; the source sees DISPUTED.
		{payroll.StatusCancelled, payroll.TripPayDisputed, true},
		// COMPLETE is projection-only; the source is left untouched.
		{payroll.StatusComplete, payroll.TripPayPending, false},
	}
	for _, c := range cases {
		got, ok := payroll.ToTripPayStatus(c.in)
		assert.Equal(t, c.ok, ok, "mapping presence for %s", c.in)
		assert.Equal(t, c.want, got, "mapping for %s", c.in)
	}
}

func TestToCutPayStatus(t *testing.T) {
	cases := []struct {
		in   payroll.Status
		want payroll.CutPayStatus
		ok   bool
	}{
		{payroll.StatusPending, payroll.CutPayPending, true},
		{payroll.StatusApproved, payroll.CutPayApproved, true},
		{payroll.StatusPaid, payroll.CutPayPaid, true},
		{payroll.StatusDisputed, payroll.CutPayRejected, true},
		{payroll.StatusCancelled, payroll.CutPayRejected, true},
		// Review states exist only for trip pay.
		{payroll.StatusCalculated, payroll.CutPayPending, false},
		{payroll.StatusReviewed, payroll.CutPayPending, false},
		{payroll.StatusComplete, payroll.CutPayPending, false},
	}
	for _, c := range cases {
		got, ok := payroll.ToCutPayStatus(c.in)
		assert.Equal(t, c.ok, ok, "mapping presence for %s", c.in)
		assert.Equal(t, c.want, got, "mapping for %s", c.in)
	}
}
