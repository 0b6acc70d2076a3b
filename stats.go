package hotswap

// Stats is a point-in-time view of a container's operation counters. The
// counters are maintained with atomic adds on the hot paths and read
// together here without further synchronization, so a Stats value is
// internally slightly racy under load; each individual field is exact.
type Stats struct {
	Loads   uint64 // completed Load calls
	Stores  uint64 // completed Store calls
	Swaps   uint64 // completed Swap calls
	Retries uint64 // spin iterations inside Load/Swap borrow races

	Recycled     uint64 // payload nodes reclaimed and returned to the pool
	LivePayloads int64  // payloads currently kept alive by the slot or handles
}

// Stats returns the container's current counters.
func (v *Value[T]) Stats() Stats {
	return Stats{
		Loads:        v.loads.Load(),
		Stores:       v.stores.Load(),
		Swaps:        v.swaps.Load(),
		Retries:      v.retries.Load(),
		Recycled:     v.recycled.Load(),
		LivePayloads: v.live.Load(),
	}
}
