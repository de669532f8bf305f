package event

// VectorTime is a vector clock snapshot: one logical clock entry per process
// that has causally contributed to an event. The zero value (nil map) is the
// bottom element and is safe to use.
type VectorTime map[string]int64

// LocalTime returns the clock entry for processID, zero if absent.
func (vt VectorTime) LocalTime(processID string) int64 {
	return vt[processID]
}

// Copy returns an independent copy of vt.
func (vt VectorTime) Copy() VectorTime {
	if vt == nil {
		return nil
	}

	copied := make(VectorTime, len(vt))
	for p, t := range vt {
		copied[p] = t
	}
	return copied
}

// Merge returns the pairwise maximum of vt and other. Neither input is
// modified.
func (vt VectorTime) Merge(other VectorTime) VectorTime {
	merged := make(VectorTime, len(vt)+len(other))
	for p, t := range vt {
		merged[p] = t
	}
	for p, t := range other {
		if t > merged[p] {
			merged[p] = t
		}
	}
	return merged
}

// Increment returns a copy of vt with the entry for processID advanced by one.
func (vt VectorTime) Increment(processID string) VectorTime {
	incremented := vt.Copy()
	if incremented == nil {
		incremented = make(VectorTime, 1)
	}
	incremented[processID]++
	return incremented
}

// LessThanOrEqual reports whether vt <= other in the partial order, i.e.
// every entry of vt is covered by other.
func (vt VectorTime) LessThanOrEqual(other VectorTime) bool {
	for p, t := range vt {
		if t > other[p] {
			return false
		}
	}
	return true
}

// Before reports whether vt happened strictly before other.
func (vt VectorTime) Before(other VectorTime) bool {
	return vt.LessThanOrEqual(other) && !other.LessThanOrEqual(vt)
}

// Concurrent reports whether vt and other are causally unrelated.
func (vt VectorTime) Concurrent(other VectorTime) bool {
	return !vt.LessThanOrEqual(other) && !other.LessThanOrEqual(vt)
}

// Equal reports whether vt and other are entry-wise identical, treating
// absent entries as zero.
func (vt VectorTime) Equal(other VectorTime) bool {
	return vt.LessThanOrEqual(other) && other.LessThanOrEqual(vt)
}
