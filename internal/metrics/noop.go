package metrics

import "time"

// Noop discards every observation. Used when metrics are disabled and in
// tests that do not assert on metrics.
type Noop struct{}

var _ Recorder = (*Noop)(nil)

func NewNoop() *Noop { return &Noop{} }

func (*Noop) LoginAttempt(string)                               {}
func (*Noop) UserRegistered()                                   {}
func (*Noop) TokenIssued(string)                                {}
func (*Noop) TokenRevoked(string)                               {}
func (*Noop) CodeIssued()                                       {}
func (*Noop) CodeExchanged(string)                              {}
func (*Noop) RateLimitRejected(string)                          {}
func (*Noop) HTTPRequest(string, string, string, time.Duration) {}
