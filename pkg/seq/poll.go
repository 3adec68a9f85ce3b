package seq

// DefaultPollLimit bounds the wait for a hardware burst.
const DefaultPollLimit = 1 << 20

// Poll calls ready until it returns true or limit calls have been made.
// A limit of zero or less polls once.
func Poll(ready func() bool, limit int) bool {
	if limit <= 0 {
		limit = 1
	}
	for i := 0; i < limit; i++ {
		if ready() {
			return true
		}
	}
	return false
}
