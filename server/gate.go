package server

// LoginGate rate-limits login attempts. The real limiter lives outside this
// server; the login handler only consults the gate and reports outcomes.
type LoginGate interface {
	// Allow reports whether a login attempt from addr may proceed.
	Allow(addr string) bool
	// Record notes the outcome of an attempt from addr.
	Record(addr string, success bool)
}

// AllowAll is the default gate: every attempt is permitted.
type AllowAll struct{}

func (AllowAll) Allow(string) bool    { return true }
func (AllowAll) Record(string, bool) {}
