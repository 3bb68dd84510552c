package appointments

import "time"

// FreeSlots cuts [open, closing) into consecutive slots of the given length and
// drops those that overlap a busy interval or start before notBefore.
func FreeSlots(open, closing time.Time, length time.Duration, busy []Slot, notBefore time.Time) []Slot {
	slots := []Slot{}
	if length <= 0 || !open.Before(closing) {
		return slots
	}
	for start := open; !start.Add(length).After(closing); start = start.Add(length) {
		end := start.Add(length)
		if start.Before(notBefore) {
			continue
		}
		taken := false
		for _, b := range busy {
			if OverlapsTimeRange(start, end, b.Start, b.End) {
				taken = true
				break
			}
		}
		if !taken {
			slots = append(slots, Slot{Start: start, End: end})
		}
	}
	return slots
}
