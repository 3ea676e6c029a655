// Package locks coordinates open-sharing and record locks across every
// handle that refers to the same backing resource.
//
// State is keyed by resource identity (device name plus native path), not by
// file number, so two handles on one file contend with each other. All
// mutations are serialised by a single mutex.
package locks

import (
	"log/slog"
	"sync"

	"github.com/acolita/basic-fileio/internal/device"
	"github.com/acolita/basic-fileio/internal/ioerr"
)

// Owner identifies one open of a resource.
type Owner uint64

// Range is an inclusive range of record numbers held by an owner.
type Range struct {
	Start, Stop int64
	Owner       Owner
}

func (r Range) overlaps(start, stop int64) bool {
	return r.Start <= stop && start <= r.Stop
}

// ordered returns the bounds with start <= stop.
func ordered(start, stop int64) (int64, int64) {
	if stop < start {
		return stop, start
	}
	return start, stop
}

// Open describes how an owner opened a resource.
type Open struct {
	Number int
	Mode   device.Mode
	Access device.Access
	Lock   device.LockMode
}

type resource struct {
	opens  map[Owner]Open
	ranges []Range
}

// Coordinator owns the lock tables of a session.
type Coordinator struct {
	mu        sync.Mutex
	resources map[string]*resource
	next      Owner
}

// New returns an empty coordinator.
func New() *Coordinator {
	return &Coordinator{resources: make(map[string]*resource)}
}

// Acquire registers an open of res and returns its owner, or fails if an
// existing open refuses to share.
//
// With the default lock mode on either side, only two INPUT opens may
// coexist (FileAlreadyOpen otherwise). With explicit lock modes, a lock
// that denies the other side's access fails with PermissionDenied.
func (c *Coordinator) Acquire(res string, o Open) (Owner, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.resources[res]
	if r == nil {
		r = &resource{opens: make(map[Owner]Open)}
		c.resources[res] = r
	}
	for _, held := range r.opens {
		if held.Lock == device.LockDefault || o.Lock == device.LockDefault {
			if held.Mode != device.Input || o.Mode != device.Input {
				return 0, ioerr.Op("OPEN", ioerr.FileAlreadyOpen)
			}
			continue
		}
		if held.Lock.Denies(o.Access) || o.Lock.Denies(held.Access) {
			return 0, ioerr.Op("OPEN", ioerr.PermissionDenied)
		}
	}
	c.next++
	r.opens[c.next] = o
	return c.next, nil
}

// Release drops owner's open of res and every range it holds.
func (c *Coordinator) Release(res string, owner Owner) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.resources[res]
	if r == nil {
		return
	}
	delete(r.opens, owner)
	kept := r.ranges[:0]
	for _, rg := range r.ranges {
		if rg.Owner != owner {
			kept = append(kept, rg)
		}
	}
	r.ranges = kept
	if len(r.opens) == 0 {
		delete(c.resources, res)
	}
}

// IsOpen reports whether any handle has res open.
func (c *Coordinator) IsOpen(res string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.resources[res]
	return r != nil && len(r.opens) > 0
}

// Lock records [start, stop] as held by owner. Reversed bounds are swapped.
// A range overlapping one held by another owner is refused.
func (c *Coordinator) Lock(res string, owner Owner, start, stop int64) error {
	start, stop = ordered(start, stop)
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.resources[res]
	if r == nil {
		return ioerr.Op("LOCK", ioerr.BadFileNumber)
	}
	for _, rg := range r.ranges {
		if rg.Owner != owner && rg.overlaps(start, stop) {
			return ioerr.Op("LOCK", ioerr.PermissionDenied)
		}
	}
	r.ranges = append(r.ranges, Range{Start: start, Stop: stop, Owner: owner})
	slog.Debug("record lock acquired",
		slog.String("resource", res),
		slog.Int64("start", start),
		slog.Int64("stop", stop),
	)
	return nil
}

// Unlock releases a range previously locked by owner with identical
// bounds, in either order. Any other range is refused and no state changes.
func (c *Coordinator) Unlock(res string, owner Owner, start, stop int64) error {
	start, stop = ordered(start, stop)
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.resources[res]
	if r == nil {
		return ioerr.Op("UNLOCK", ioerr.PermissionDenied)
	}
	for i, rg := range r.ranges {
		if rg.Owner == owner && rg.Start == start && rg.Stop == stop {
			r.ranges = append(r.ranges[:i], r.ranges[i+1:]...)
			return nil
		}
	}
	return ioerr.Op("UNLOCK", ioerr.PermissionDenied)
}

// Check fails with PermissionDenied if record rec of res is locked by an
// owner other than owner.
func (c *Coordinator) Check(res string, owner Owner, rec int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.resources[res]
	if r == nil {
		return nil
	}
	for _, rg := range r.ranges {
		if rg.Owner != owner && rg.overlaps(rec, rec) {
			return ioerr.New(ioerr.PermissionDenied)
		}
	}
	return nil
}

// Held returns a copy of the ranges currently recorded for res.
func (c *Coordinator) Held(res string) []Range {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.resources[res]
	if r == nil {
		return nil
	}
	out := make([]Range, len(r.ranges))
	copy(out, r.ranges)
	return out
}
