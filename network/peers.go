package network

import (
	"sort"
	"sync"
)

// PeerSet is the set of peer addresses a node talks to.
type PeerSet struct {
	mu    sync.RWMutex
	peers map[string]struct{}
}

func NewPeerSet(addrs ...string) *PeerSet {
	ps := &PeerSet{peers: make(map[string]struct{})}
	for _, addr := range addrs {
		ps.Add(addr)
	}
	return ps
}

// Add reports whether addr was not known before.
func (ps *PeerSet) Add(addr string) bool {
	if addr == "" {
		return false
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if _, ok := ps.peers[addr]; ok {
		return false
	}
	ps.peers[addr] = struct{}{}
	return true
}

func (ps *PeerSet) Remove(addr string) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if _, ok := ps.peers[addr]; !ok {
		return false
	}
	delete(ps.peers, addr)
	return true
}

func (ps *PeerSet) Contains(addr string) bool {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	_, ok := ps.peers[addr]
	return ok
}

// List returns the peers sorted by address.
func (ps *PeerSet) List() []string {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	addrs := make([]string, 0, len(ps.peers))
	for addr := range ps.peers {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	return addrs
}

func (ps *PeerSet) Len() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	return len(ps.peers)
}
