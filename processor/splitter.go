package processor

import (
	"github.com/jacobpovar/eventuate/eventlog"
)

// Split partitions units into a chunk whose total event count stays within
// limit, and the remainder. A unit is never divided between chunks. A unit
// whose own size already exceeds the limit forms a chunk on its own and is
// written whole.
//
// The returned slices alias units.
func Split(units []eventlog.WriteUnit, limit int) (chunk, remainder []eventlog.WriteUnit) {
	total := 0
	for i, u := range units {
		total += len(u.Events)
		if total <= limit {
			continue
		}

		if i == 0 {
			// oversized unit, written whole
			return units[:1], units[1:]
		}

		return units[:i], units[i:]
	}

	return units, nil
}
