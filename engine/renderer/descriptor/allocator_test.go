package descriptor

import (
	"math/rand"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/lumen/engine/core"
)

func TestAllocateGrowsSequentially(t *testing.T) {
	a := NewSlotAllocator("textures", 4)
	for want := uint32(0); want < 4; want++ {
		got, err := a.Allocate()
		if err != nil {
			t.Fatalf("Allocate() error = %v", err)
		}
		if got != want {
			t.Errorf("Allocate() = %d, want %d", got, want)
		}
	}
	if a.HighWater() != 4 || a.Live() != 4 {
		t.Errorf("HighWater=%d Live=%d, want 4 4", a.HighWater(), a.Live())
	}
}

func TestFreedIndexReusedBeforeHighWater(t *testing.T) {
	a := NewSlotAllocator("textures", 8)
	for i := 0; i < 4; i++ {
		_, _ = a.Allocate()
	}
	if err := a.Free(1); err != nil {
		t.Fatal(err)
	}
	if err := a.Free(3); err != nil {
		t.Fatal(err)
	}
	// most recently freed first
	for _, want := range []uint32{3, 1, 4} {
		got, err := a.Allocate()
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("Allocate() = %d, want %d", got, want)
		}
	}
}

func TestOverflowIsReported(t *testing.T) {
	a := NewSlotAllocator("samplers", 2)
	_, _ = a.Allocate()
	_, _ = a.Allocate()
	idx, err := a.Allocate()
	if err == nil {
		t.Fatalf("Allocate() = %d, want overflow", idx)
	}
	if !errors.Is(err, core.ErrDescriptorOverflow) {
		t.Errorf("error %v is not ErrDescriptorOverflow", err)
	}
	var oe *core.OverflowError
	if !errors.As(err, &oe) || oe.Capacity != 2 || oe.Pool != "samplers" {
		t.Errorf("OverflowError = %+v", oe)
	}
	// freeing makes room again
	if err := a.Free(0); err != nil {
		t.Fatal(err)
	}
	if got, err := a.Allocate(); err != nil || got != 0 {
		t.Errorf("Allocate() after free = %d, %v; want 0, nil", got, err)
	}
}

func TestDoubleFreeRejected(t *testing.T) {
	a := NewSlotAllocator("images", 4)
	i, _ := a.Allocate()
	if err := a.Free(i); err != nil {
		t.Fatal(err)
	}
	if err := a.Free(i); err == nil {
		t.Error("second Free succeeded")
	}
	if err := a.Free(3); err == nil {
		t.Error("Free of never allocated index succeeded")
	}
	// the rejected frees must not have pushed duplicates
	first, _ := a.Allocate()
	second, _ := a.Allocate()
	if first == second {
		t.Errorf("Allocate returned %d twice", first)
	}
}

func TestReset(t *testing.T) {
	a := NewSlotAllocator("images", 4)
	for i := 0; i < 3; i++ {
		_, _ = a.Allocate()
	}
	_ = a.Free(2)
	a.Reset()
	if a.Live() != 0 || a.HighWater() != 0 {
		t.Errorf("after Reset Live=%d HighWater=%d", a.Live(), a.HighWater())
	}
	if got, _ := a.Allocate(); got != 0 {
		t.Errorf("Allocate() after Reset = %d, want 0", got)
	}
}

// Random allocate/free sequences never hand out a live index twice and
// never exceed the capacity.
func TestRandomSequencesKeepIndicesUnique(t *testing.T) {
	const capacity = 32
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 200; round++ {
		a := NewSlotAllocator("fuzz", capacity)
		owned := map[uint32]bool{}
		var lastFreed []uint32
		for step := 0; step < 500; step++ {
			if rng.Intn(3) > 0 {
				idx, err := a.Allocate()
				if len(owned) == capacity {
					if err == nil {
						t.Fatalf("round %d: allocate on full pool returned %d", round, idx)
					}
					continue
				}
				if err != nil {
					t.Fatalf("round %d: Allocate() = %v with %d live", round, err, len(owned))
				}
				if idx >= capacity {
					t.Fatalf("round %d: index %d out of bounds", round, idx)
				}
				if owned[idx] {
					t.Fatalf("round %d: index %d handed out twice", round, idx)
				}
				if n := len(lastFreed); n > 0 {
					if idx != lastFreed[n-1] {
						t.Fatalf("round %d: Allocate() = %d, want recycled %d", round, idx, lastFreed[n-1])
					}
					lastFreed = lastFreed[:n-1]
				}
				owned[idx] = true
				continue
			}
			for idx := range owned {
				if err := a.Free(idx); err != nil {
					t.Fatalf("round %d: Free(%d) = %v", round, idx, err)
				}
				delete(owned, idx)
				lastFreed = append(lastFreed, idx)
				break
			}
		}
		if a.Live() != uint32(len(owned)) {
			t.Fatalf("round %d: Live() = %d, want %d", round, a.Live(), len(owned))
		}
	}
}
