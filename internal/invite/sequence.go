package invite

// SequenceDiff returns incoming.Sequence - stored.Sequence.
//
// Zero means the incoming version is the current one, a negative value means
// the incoming version is stale, and a positive value means the store is
// behind. A missing SEQUENCE counts as 0.
func SequenceDiff(incoming, stored Event) int {
	return incoming.Sequence - stored.Sequence
}

// isStale reports whether incoming is older than stored.
func isStale(incoming Event, stored *Event) bool {
	return stored != nil && SequenceDiff(incoming, *stored) < 0
}
