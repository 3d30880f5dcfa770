package recon

// Session owns the consumption state of one reconciliation run: the set of
// commissions already linked and the set of payment-group keys already
// spent. It guarantees at-most-one-to-one correspondence between commissions
// and payment groups within a run, independent of iteration order.
//
// A Session belongs to exactly one run. Running two reconciliation passes
// concurrently against the same data is unsafe and must be prevented by the
// caller (see service.ReconService's run lock).
type Session struct {
	consumedCommissions map[int64]bool
	consumedKeys        map[string]bool
}

// NewSession creates an empty session
func NewSession() *Session {
	return &Session{
		consumedCommissions: make(map[int64]bool),
		consumedKeys:        make(map[string]bool),
	}
}

// CommissionConsumed reports whether the commission was already matched
// during this run.
func (s *Session) CommissionConsumed(commissionID int64) bool {
	return s.consumedCommissions[commissionID]
}

// KeyConsumed reports whether the payment-group key was already spent
// during this run.
func (s *Session) KeyConsumed(key string) bool {
	return s.consumedKeys[key]
}

// ConsumedKeys exposes the consumed key set for candidate filtering.
// The map is live: later Consume calls are visible through it.
func (s *Session) ConsumedKeys() map[string]bool {
	return s.consumedKeys
}

// Consume marks both sides of a successful match as spent
func (s *Session) Consume(commissionID int64, key string) {
	s.consumedCommissions[commissionID] = true
	s.consumedKeys[key] = true
}

// CommissionCount returns how many commissions were consumed
func (s *Session) CommissionCount() int {
	return len(s.consumedCommissions)
}
