// Package lifetime records which GPU objects were created so they can be
// destroyed in reverse creation order, whether setup completed or stopped
// half way.
package lifetime

import (
	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/lumen/engine/core"
)

type Flag uint8

const MaxFlags = 64

type Scope uint8

const (
	// Lives as long as the device.
	ScopeDevice Scope = iota
	// Rebuilt on every asset swap.
	ScopeAsset
)

func (s Scope) String() string {
	if s == ScopeAsset {
		return "asset"
	}
	return "device"
}

// Entry names one resource category in the creation order.
type Entry struct {
	Flag  Flag
	Name  string
	Scope Scope
}

type Tracker struct {
	name    string
	order   []Entry
	byFlag  map[Flag]Entry
	mask    uint64
	cleanup [MaxFlags]func() error
}

// NewTracker takes every category in the order it is created. Teardown walks
// the same list backwards.
func NewTracker(name string, order []Entry) *Tracker {
	t := &Tracker{
		name:   name,
		order:  order,
		byFlag: make(map[Flag]Entry, len(order)),
	}
	for _, e := range order {
		if e.Flag >= MaxFlags {
			panic(errors.Newf("lifetime flag %d (%s) does not fit the mask", e.Flag, e.Name))
		}
		if _, dup := t.byFlag[e.Flag]; dup {
			panic(errors.Newf("lifetime flag %d (%s) listed twice", e.Flag, e.Name))
		}
		t.byFlag[e.Flag] = e
	}
	return t
}

// Mark sets flag and records how to destroy the resource. It must be called
// right after the resource was created.
func (t *Tracker) Mark(flag Flag, destroy func() error) error {
	e, ok := t.byFlag[flag]
	if !ok {
		return errors.Newf("%s: flag %d is not part of the teardown order", t.name, flag)
	}
	if t.Has(flag) {
		return errors.Newf("%s: %s is already created", t.name, e.Name)
	}
	t.mask |= 1 << flag
	t.cleanup[flag] = destroy
	return nil
}

// Create runs fn and marks flag with the returned destroy action when fn
// succeeds.
func (t *Tracker) Create(flag Flag, fn func() (func() error, error)) error {
	destroy, err := fn()
	if err != nil {
		return err
	}
	return t.Mark(flag, destroy)
}

func (t *Tracker) Has(flag Flag) bool {
	return t.mask&(1<<flag) != 0
}

func (t *Tracker) Mask() uint64 { return t.mask }

// Teardown destroys every created resource in reverse creation order. Calling
// it again is a no-op. Errors from destroy actions are collected and returned
// once every resource was visited.
func (t *Tracker) Teardown() error {
	return t.teardown(func(Entry) bool { return true })
}

// TeardownScope destroys only the resources of scope s.
func (t *Tracker) TeardownScope(s Scope) error {
	return t.teardown(func(e Entry) bool { return e.Scope == s })
}

// Release destroys a single resource if it was created.
func (t *Tracker) Release(flag Flag) error {
	return t.teardown(func(e Entry) bool { return e.Flag == flag })
}

func (t *Tracker) teardown(match func(Entry) bool) error {
	var errs error
	for i := len(t.order) - 1; i >= 0; i-- {
		e := t.order[i]
		if !match(e) || !t.Has(e.Flag) {
			continue
		}
		destroy := t.cleanup[e.Flag]
		t.cleanup[e.Flag] = nil
		t.mask &^= 1 << e.Flag
		if destroy == nil {
			continue
		}
		if err := destroy(); err != nil {
			core.LogError("%s: destroying %s failed: %s", t.name, e.Name, err)
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "destroying %s", e.Name))
		}
	}
	return errs
}
