package ygggo_pool

import (
	"fmt"
	"sync/atomic"
)

// Address identifies one candidate MySQL server as a host:port pair.
// Addresses compare by value.
type Address struct {
	Host string
	Port int
}

// String returns the address in host:port form.
func (a Address) String() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// addressRotation hands out round-robin orderings over a fixed address list.
// Each ordering enumerates every address exactly once; consecutive orderings
// start one position further so independent connection attempts spread load
// across the deployment instead of always hammering the first server.
type addressRotation struct {
	addrs  []Address
	cursor atomic.Uint64
}

func newAddressRotation(addrs []Address) *addressRotation {
	return &addressRotation{addrs: append([]Address(nil), addrs...)}
}

// order returns the next rotation: all addresses exactly once, starting just
// past the previous ordering's start. Safe for concurrent use.
func (r *addressRotation) order() []Address {
	n := len(r.addrs)
	start := int((r.cursor.Add(1) - 1) % uint64(n))
	out := make([]Address, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, r.addrs[(start+i)%n])
	}
	return out
}
