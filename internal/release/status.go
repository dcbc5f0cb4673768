package release

// DeriveStatus returns StatusComplete when every line has nothing left to
// release. An order without lines is never complete.
func DeriveStatus(lines []LineItem) Status {
	if len(lines) == 0 {
		return StatusPartial
	}
	for _, l := range lines {
		if !l.CurrentRemaining().IsZero() {
			return StatusPartial
		}
	}
	return StatusComplete
}
