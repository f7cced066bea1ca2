package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCaptureStatusNeverRegresses(t *testing.T) {
	order := []CaptureStatus{CapturePending, CaptureProcessing, CaptureCompleted, CaptureValidated}
	for i, from := range order {
		for j, to := range order {
			if j <= i {
				assert.False(t, from.CanTransitionTo(to), "%s -> %s must be rejected", from, to)
			}
		}
	}
}

func TestCaptureStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to CaptureStatus
		want     bool
	}{
		{CapturePending, CaptureProcessing, true},
		{CaptureProcessing, CaptureCompleted, true},
		{CaptureCompleted, CaptureValidated, true},
		{CaptureCompleted, CaptureRejected, true},
		{CapturePending, CaptureCompleted, false},
		{CaptureProcessing, CaptureValidated, false},
		{CapturePending, CaptureFailed, true},
		{CaptureProcessing, CaptureFailed, true},
		{CaptureCompleted, CaptureFailed, false},
		{CaptureValidated, CaptureFailed, false},
		{CaptureRejected, CaptureFailed, false},
		{CaptureFailed, CaptureFailed, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestCaptureStatusIsTerminal(t *testing.T) {
	assert.False(t, CapturePending.IsTerminal())
	assert.False(t, CaptureProcessing.IsTerminal())
	assert.False(t, CaptureCompleted.IsTerminal())
	assert.True(t, CaptureValidated.IsTerminal())
	assert.True(t, CaptureRejected.IsTerminal())
	assert.True(t, CaptureFailed.IsTerminal())
}
