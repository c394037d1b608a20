package room

// State is the race lifecycle state of a room.
type State string

const (
	StateWaiting   State = "waiting"
	StateCountdown State = "countdown"
	StateRacing    State = "racing"
	StateFinished  State = "finished"
)

// Event drives a state transition.
type Event string

const (
	// EventQuorum fires when a Join brings the room to two or more humans.
	EventQuorum Event = "quorum"
	// EventCountdownElapsed fires when the countdown deadline passes.
	EventCountdownElapsed Event = "countdown_elapsed"
	// EventAllDone fires when every player has finished the passage.
	EventAllDone Event = "all_done"
	// EventReset fires on a Reset request from a remaining human.
	EventReset Event = "reset"
	// EventAbort fires when the humans needed to race are gone: quorum lost
	// during countdown, or the last human disconnecting at any later stage.
	EventAbort Event = "abort"
)

// transition returns the successor state for (state, event), or ok=false when
// the event does not apply. This table is the only way a room changes state.
func transition(s State, e Event) (State, bool) {
	switch {
	case s == StateWaiting && e == EventQuorum:
		return StateCountdown, true
	case s == StateCountdown && e == EventCountdownElapsed:
		return StateRacing, true
	case s == StateCountdown && e == EventAbort:
		return StateWaiting, true
	case s == StateRacing && e == EventAllDone:
		return StateFinished, true
	case s == StateRacing && e == EventAbort:
		return StateWaiting, true
	case s == StateFinished && e == EventReset:
		return StateWaiting, true
	case s == StateFinished && e == EventAbort:
		return StateWaiting, true
	}
	return s, false
}
