package model

// Actor is the already-authenticated identity attached to every mutating
// call. System actors (automated ingestion, reconciliation jobs) may bypass
// the advisory capacity check on booking.
type Actor struct {
	ID     string
	System bool
}

func UserActor(id string) Actor {
	return Actor{ID: id}
}

func SystemActor(id string) Actor {
	return Actor{ID: id, System: true}
}

func (a Actor) Authenticated() bool {
	return a.ID != ""
}
