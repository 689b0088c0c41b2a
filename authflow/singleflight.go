package authflow

import "golang.org/x/sync/singleflight"

// refreshGroup funnels concurrent refresh demands into at most one
// outstanding attempt. Callers that arrive while a refresh is in flight
// await that attempt's outcome instead of starting a second one; once the
// attempt settles the in-flight marker is dropped, so the next caller starts
// fresh rather than observing a stale result.
//
// The guarded task spans network I/O, the persistence write, and the status
// transition, so those three steps are observed atomically by every other
// operation.
type refreshGroup struct {
	group singleflight.Group
}

const refreshFlightKey = "refresh"

func (g *refreshGroup) Do(task func() (TokenSet, error)) (TokenSet, error) {
	v, err, _ := g.group.Do(refreshFlightKey, func() (any, error) {
		return task()
	})
	tokens, _ := v.(TokenSet)
	return tokens, err
}
