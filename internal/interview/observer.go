package interview

// Observer receives presentation callbacks. All methods are called from the
// coordinator's event loop, one at a time, and must return quickly.
type Observer interface {
	// StateChanged reports every transition.
	StateChanged(from, to State)

	// EntryAppended reports each transcript entry as it is appended.
	EntryAppended(e Entry)

	// Interim reports the candidate's in-progress caption. An empty string
	// clears it.
	Interim(text string)

	// ListenArmed reports that a manual listen window is waiting for
	// RequestListen.
	ListenArmed()

	// Ended reports the final result of an attempt.
	Ended(r Result)
}

// ObserverFuncs adapts optional functions to [Observer]. Nil fields are
// skipped.
type ObserverFuncs struct {
	OnState   func(from, to State)
	OnEntry   func(e Entry)
	OnInterim func(text string)
	OnArmed   func()
	OnEnded   func(r Result)
}

var _ Observer = ObserverFuncs{}

func (f ObserverFuncs) StateChanged(from, to State) {
	if f.OnState != nil {
		f.OnState(from, to)
	}
}

func (f ObserverFuncs) EntryAppended(e Entry) {
	if f.OnEntry != nil {
		f.OnEntry(e)
	}
}

func (f ObserverFuncs) Interim(text string) {
	if f.OnInterim != nil {
		f.OnInterim(text)
	}
}

func (f ObserverFuncs) ListenArmed() {
	if f.OnArmed != nil {
		f.OnArmed()
	}
}

func (f ObserverFuncs) Ended(r Result) {
	if f.OnEnded != nil {
		f.OnEnded(r)
	}
}
