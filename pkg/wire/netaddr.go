package wire

import "net"

// CanonicalIP folds an IPv4 (or IPv4-mapped-in-IPv6) address to its 128-bit
// IPv6 representation, per spec section 9's design-notes row: raw
// sockaddr_storage comparisons need IPv4-mapped-in-IPv6 equivalence so the
// auth cache's host matching and the admin surface's source-host block
// list compare like with like.
func CanonicalIP(ip net.IP) net.IP {
	if v4 := ip.To4(); v4 != nil {
		return v4.To16()
	}
	return ip.To16()
}

// IsLoopback reports whether ip is a loopback address, matching both ::1
// and the IPv4-mapped ::ffff:127.0.0.0/104 range, per spec section 9.
func IsLoopback(ip net.IP) bool {
	c := CanonicalIP(ip)
	if c == nil {
		return false
	}
	if c.IsLoopback() {
		return true
	}
	if v4 := c.To4(); v4 != nil {
		return v4[0] == 127
	}
	return false
}

// SameHost reports whether a and b canonicalise to the same address.
func SameHost(a, b net.IP) bool {
	ca, cb := CanonicalIP(a), CanonicalIP(b)
	if ca == nil || cb == nil {
		return false
	}
	return ca.Equal(cb)
}
