package revert

// changesetLimits maps an edit count threshold to the number of change
// sets revertible at once. The highest threshold at or below the user's
// edit count applies.
var changesetLimits = map[int64]int{
	0:    0,
	10:   1,
	100:  3,
	500:  10,
	3000: 30,
}

// moderatorLimits applies to users with privileged roles.
var moderatorLimits = map[int64]int{0: 50}

func limitsFor(moderator bool) map[int64]int {
	if moderator {
		return moderatorLimits
	}
	return changesetLimits
}

// revertLimit returns how many change sets the user may revert at once.
func revertLimit(edits int64, moderator bool) int {
	limit := 0
	best := int64(-1)
	for threshold, v := range limitsFor(moderator) {
		if threshold <= edits && threshold > best {
			best = threshold
			limit = v
		}
	}
	return limit
}

// minEditsRequired returns the lowest edit count with a non-zero limit.
func minEditsRequired(moderator bool) int64 {
	min := int64(-1)
	for threshold, v := range limitsFor(moderator) {
		if v > 0 && (min < 0 || threshold < min) {
			min = threshold
		}
	}
	return min
}

// nextLimitIncrease returns the lowest threshold above the user's edit
// count, if any.
func nextLimitIncrease(edits int64, moderator bool) (int64, bool) {
	next := int64(-1)
	for threshold := range limitsFor(moderator) {
		if threshold > edits && (next < 0 || threshold < next) {
			next = threshold
		}
	}
	return next, next >= 0
}
