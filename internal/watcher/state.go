package watcher

// NextState advances the per-entry confirmation state machine from an
// observed decision.
//
// Transition table:
//
//	MONITORING  + qualifying signal, below required  -> CONFIRMING
//	MONITORING  + qualifying signal, confirmed       -> ELIGIBLE
//	CONFIRMING  + qualifying signal, below required  -> CONFIRMING
//	CONFIRMING  + qualifying signal, confirmed       -> ELIGIBLE
//	CONFIRMING  + no signal                          -> MONITORING
//	ELIGIBLE    + any next tick                      -> MONITORING (cooldown)
//	*           + ABORT_TOPUP                        -> ABORTED
//	*           + TTL_EXPIRED                        -> EXPIRED
//
// ABORTED and EXPIRED are terminal.
func NextState(current State, d Decision) State {
	if current == StateAborted || current == StateExpired {
		return current
	}
	switch {
	case d.Action == ActionAbort:
		return StateAborted
	case d.Reason == ReasonTTLExpired:
		return StateExpired
	case d.Action == ActionEligible:
		return StateEligible
	case d.Signal:
		return StateConfirming
	default:
		return StateMonitoring
	}
}
