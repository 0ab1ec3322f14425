package core

import (
	"testing"

	"github.com/cockroachdb/errors"
)

func TestOverflowErrorMatchesSentinel(t *testing.T) {
	err := errors.Wrap(&OverflowError{Pool: "samplers", Capacity: 4}, "add sampler")
	if !errors.Is(err, ErrDescriptorOverflow) {
		t.Fatalf("errors.Is(%v, ErrDescriptorOverflow) = false", err)
	}
	var oe *OverflowError
	if !errors.As(err, &oe) {
		t.Fatalf("errors.As did not find OverflowError in %v", err)
	}
	if oe.Capacity != 4 {
		t.Errorf("Capacity = %d, want 4", oe.Capacity)
	}
}

func TestFrameErrorClassification(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		recoverable bool
		rebuild     bool
	}{
		{"fence timeout", NewFrameError("wait", ErrFenceTimeout), true, false},
		{"out of date", NewFrameError("acquire", ErrSwapchainOutOfDate), true, true},
		{"device lost", NewFrameError("submit", ErrDeviceLost), false, false},
		{"setup", NewSetupError("device", ErrUnknown), false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFrameRecoverable(tt.err); got != tt.recoverable {
				t.Errorf("IsFrameRecoverable = %v, want %v", got, tt.recoverable)
			}
			if got := NeedsSwapchainRebuild(tt.err); got != tt.rebuild {
				t.Errorf("NeedsSwapchainRebuild = %v, want %v", got, tt.rebuild)
			}
		})
	}
}

func TestAssetErrorUnwrap(t *testing.T) {
	err := NewAssetError("sponza", "pack", errors.Wrapf(ErrBufferOverflow, "vertex buffer"))
	if !errors.Is(err, ErrBufferOverflow) {
		t.Errorf("errors.Is(%v, ErrBufferOverflow) = false", err)
	}
}
