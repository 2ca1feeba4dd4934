package metrics

type nop struct{}

func (nop) Hit(string)                   {}
func (nop) Miss(string)                  {}
func (nop) Stored(string, int)           {}
func (nop) Removed(string)               {}
func (nop) Evicted(string, string)       {}
func (nop) Reconciled(string, int)       {}
func (nop) Entries(string, int)          {}
func (nop) ComputeDuration(string) Timer { return nopTimer{} }

type nopTimer struct{}

func (nopTimer) ObserveDuration() {}

// Nop returns a Metrics that discards every event.
func Nop() Metrics { return nop{} }

// NopTimer returns a Timer that records nothing.
func NopTimer() Timer { return nopTimer{} }
