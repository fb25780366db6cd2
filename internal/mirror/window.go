package mirror

import (
	"time"
)

// window is one inclusive [Gte, Lte] epoch range bounding a single upstream
// list query.
type window struct {
	Gte int64
	Lte int64
}

// splitWindows chunks [gte, lte] into sequential calendar-month-aligned
// sub-windows of chunkMonths width. A non-positive chunkMonths yields a
// single window over the whole range. Sub-windows are non-overlapping: each
// ends one second before the next month boundary, the last is clamped to lte.
func splitWindows(gte, lte int64, chunkMonths int) []window {
	if lte < gte {
		return nil
	}

	if chunkMonths <= 0 {
		return []window{{Gte: gte, Lte: lte}}
	}

	var windows []window

	cur := gte

	for cur <= lte {
		t := time.Unix(cur, 0).UTC()
		monthStart := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		next := monthStart.AddDate(0, chunkMonths, 0).Unix()

		end := next - 1
		if end >= lte {
			windows = append(windows, window{Gte: cur, Lte: lte})
			break
		}

		windows = append(windows, window{Gte: cur, Lte: end})
		cur = next
	}

	return windows
}
