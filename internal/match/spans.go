package match

// Contiguous compresses an ascending list of matched character positions
// into minimal inclusive [start, end] ranges. Positions that differ by
// exactly 1 extend the open range; a gap of 2 or more closes it and
// starts a new one.
//
// Fewer than two positions yield no ranges at all: a single matched
// character alone is not worth highlighting. Callers rely on this.
func Contiguous(positions []int) [][2]int {
	if len(positions) < 2 {
		return nil
	}
	spans := make([][2]int, 0, len(positions))
	minimum, maximum := positions[0], positions[0]
	for _, current := range positions {
		switch diff := current - maximum; {
		case diff == 1:
			maximum = current
		case diff >= 2:
			spans = append(spans, [2]int{minimum, maximum})
			minimum, maximum = current, current
		}
	}
	spans = append(spans, [2]int{minimum, maximum})
	return spans
}
