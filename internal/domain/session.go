package domain

// SessionPhase is the per-peer rotation state machine.
type SessionPhase int

const (
	// SessionUninitialized means no key agreement has completed with the
	// peer yet.
	SessionUninitialized SessionPhase = iota
	// SessionEstablished means both chain keys are seeded and rotating.
	SessionEstablished
)

// SessionState is the per-peer key-rotation state. This is a coarse
// single-chain rotation, not a double ratchet: both chains are re-derived
// from the sending chain after every successful decrypt, so it rotates
// keys forward but does not provide independent send/receive chains or
// skipped-message-key recovery.
//
// Mutated only by the ratchet store after a successful decrypt; never
// overwritten externally.
type SessionState struct {
	Phase        SessionPhase `json:"phase"`
	SendChainKey []byte       `json:"send_chain_key,omitempty"`
	RecvChainKey []byte       `json:"recv_chain_key,omitempty"`
	Counter      uint32       `json:"counter"`
}

// Established reports whether the session has completed a key agreement.
func (s SessionState) Established() bool { return s.Phase == SessionEstablished }
