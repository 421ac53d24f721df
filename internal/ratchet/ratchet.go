// Package ratchet tracks per-peer key-rotation state.
//
// This is deliberately a coarse single-chain rotation, not a Signal-style
// double ratchet: after each successful decrypt both chain keys are
// re-derived from the sending chain and the counter is incremented. It
// rotates key material forward but offers no skipped-message-key recovery
// and no independently advancing send/receive chains.
package ratchet

import (
	"sync"

	"veil/internal/crypto"
	"veil/internal/domain"
)

// Store holds the rotation state for every peer this client has completed
// a key agreement with.
type Store struct {
	mu    sync.Mutex
	peers map[string]*domain.SessionState
}

// NewStore returns an empty ratchet store.
func NewStore() *Store {
	return &Store{peers: make(map[string]*domain.SessionState)}
}

// Advance feeds the outcome of a successful decrypt into the peer's state.
//
// On the first agreement with a peer the state transitions from
// Uninitialized to Established with both chains seeded from the shared
// secret and the counter at zero. Every later call rotates: the sending
// chain is stretched into a fresh send/receive pair and the counter is
// incremented. The shared secret is only consulted on the first call.
func (s *Store) Advance(peer string, sharedSecret [32]byte) domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.peers[peer]
	if !ok || !st.Established() {
		st = &domain.SessionState{
			Phase:        domain.SessionEstablished,
			SendChainKey: append([]byte(nil), sharedSecret[:]...),
			RecvChainKey: append([]byte(nil), sharedSecret[:]...),
			Counter:      0,
		}
		s.peers[peer] = st
		return *st
	}

	nextSend, nextRecv := crypto.RotateChainKey(st.SendChainKey)
	st.SendChainKey = nextSend
	st.RecvChainKey = nextRecv
	st.Counter++
	return *st
}

// State returns a copy of the peer's current state. Peers with no
// completed agreement report SessionUninitialized.
func (s *Store) State(peer string) domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.peers[peer]; ok {
		out := *st
		out.SendChainKey = append([]byte(nil), st.SendChainKey...)
		out.RecvChainKey = append([]byte(nil), st.RecvChainKey...)
		return out
	}
	return domain.SessionState{Phase: domain.SessionUninitialized}
}

// Reset drops the peer's state back to Uninitialized.
func (s *Store) Reset(peer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.peers, peer)
}
