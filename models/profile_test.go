package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApprovalStatusIsValid(t *testing.T) {
	for _, s := range []ApprovalStatus{StatusPending, StatusApproved, StatusRefused, StatusDeleted} {
		assert.True(t, s.IsValid(), string(s))
	}
	assert.False(t, ApprovalStatus("banned").IsValid())
	assert.False(t, ApprovalStatus("").IsValid())
}

func TestApprovalStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to ApprovalStatus
		want     bool
	}{
		{StatusPending, StatusApproved, true},
		{StatusPending, StatusRefused, true},
		{StatusApproved, StatusRefused, false},
		{StatusRefused, StatusApproved, false},
		{StatusApproved, StatusPending, true}, // reset
		{StatusRefused, StatusPending, true},  // reset
		{StatusPending, StatusPending, true},  // reset also clears the charter flag
		{StatusPending, StatusDeleted, true},
		{StatusApproved, StatusDeleted, true},
		{StatusDeleted, StatusDeleted, false},
		{StatusDeleted, StatusApproved, false},
		{StatusDeleted, StatusPending, true}, // returning member re-registers
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to),
			"%s -> %s", tt.from, tt.to)
	}
}

func TestProfileHasLocation(t *testing.T) {
	var p Profile
	assert.False(t, p.HasLocation())

	lat, lon := 48.85, 2.35
	p.Latitude = &lat
	assert.False(t, p.HasLocation())
	p.Longitude = &lon
	assert.True(t, p.HasLocation())
}
