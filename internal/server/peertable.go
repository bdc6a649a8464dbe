package server

import (
	"net"

	"github.com/hblink4/hblink4/internal/peer"
	"github.com/puzpuzpuz/xsync/v4"
)

// peerTable indexes connected repeaters by radio id and by bound address.
// Logically owned by the single event loop goroutine; xsync.Map is used so
// outbound connections, which route their inbound DMRD from their own
// goroutines, can read it without a separate lock.
type peerTable struct {
	byID   *xsync.Map[uint32, *peer.Peer]
	byAddr *xsync.Map[string, *peer.Peer]
}

func newPeerTable() *peerTable {
	return &peerTable{
		byID:   xsync.NewMap[uint32, *peer.Peer](),
		byAddr: xsync.NewMap[string, *peer.Peer](),
	}
}

func (t *peerTable) get(radioID uint32) (*peer.Peer, bool) {
	return t.byID.Load(radioID)
}

func (t *peerTable) getByAddr(addr *net.UDPAddr) (*peer.Peer, bool) {
	return t.byAddr.Load(addr.String())
}

func (t *peerTable) put(p *peer.Peer) {
	t.byID.Store(p.RadioID, p)
	t.byAddr.Store(p.Addr.String(), p)
}

func (t *peerTable) remove(radioID uint32) {
	p, ok := t.byID.Load(radioID)
	if !ok {
		return
	}
	t.byID.Delete(radioID)
	t.byAddr.Delete(p.Addr.String())
}

// rebind updates the address index after a peer's bound address changes
// (only happens before the source-address-binding invariant takes effect,
// i.e. during login/challenge).
func (t *peerTable) rebind(p *peer.Peer, oldAddr *net.UDPAddr) {
	if oldAddr != nil {
		t.byAddr.Delete(oldAddr.String())
	}
	t.byAddr.Store(p.Addr.String(), p)
}

func (t *peerTable) all() []*peer.Peer {
	out := make([]*peer.Peer, 0, t.byID.Size())
	t.byID.Range(func(_ uint32, p *peer.Peer) bool {
		out = append(out, p)
		return true
	})
	return out
}

func (t *peerTable) len() int { return t.byID.Size() }
