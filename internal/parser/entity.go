package parser

import (
	"math/bits"
	"net/netip"
	"strconv"
	"strings"

	"go4.org/netipx"

	"feedsnap/internal/domain"
)

// ParseEntity classifies a candidate token. Checks run in order:
//
//  1. exactly one '-' with a base-10 integer on each side is a numeric range,
//     kept verbatim even when start > end;
//  2. anything containing '/' is a network, host bits are masked;
//  3. otherwise the token must be a bare IPv4 or IPv6 address.
//
// Anything else is EntityInvalid.
func ParseEntity(token string) domain.Entity {
	if token == "" {
		return domain.Entity{}
	}

	if strings.Count(token, "-") == 1 {
		left, right, _ := strings.Cut(token, "-")
		start, errStart := domain.ParseInt(left)
		end, errEnd := domain.ParseInt(right)
		if errStart == nil && errEnd == nil {
			return domain.RangeEntity(start, end)
		}
	}

	if strings.Contains(token, "/") {
		prefix, ok := parseNetwork(token)
		if !ok {
			return domain.Entity{}
		}
		r := netipx.RangeOfPrefix(prefix)
		return domain.RangeEntity(AddrToInt(r.From()), AddrToInt(r.To()))
	}

	addr, err := netip.ParseAddr(token)
	if err != nil {
		return domain.Entity{}
	}
	return domain.AddressEntity(AddrToInt(addr), addrVersion(addr))
}

// AddrToInt returns the integer value of addr. IPv4-mapped IPv6 addresses
// keep their 128-bit value.
func AddrToInt(addr netip.Addr) domain.Int {
	if addr.Is4() {
		b := addr.As4()
		return domain.IntFromBytes(b[:])
	}
	b := addr.As16()
	return domain.IntFromBytes(b[:])
}

func addrVersion(addr netip.Addr) uint8 {
	if addr.Is4() {
		return 4
	}
	return 6
}

// parseNetwork accepts "addr/len" and, for IPv4, "addr/netmask" or
// "addr/hostmask". The returned prefix is masked.
func parseNetwork(token string) (netip.Prefix, bool) {
	i := strings.LastIndexByte(token, '/')
	addrPart, maskPart := token[:i], token[i+1:]

	addr, err := netip.ParseAddr(addrPart)
	if err != nil {
		return netip.Prefix{}, false
	}
	addr = addr.WithZone("")

	length, ok := prefixLength(maskPart, addr)
	if !ok {
		return netip.Prefix{}, false
	}

	prefix, err := addr.Prefix(length)
	if err != nil {
		return netip.Prefix{}, false
	}
	return prefix, true
}

func prefixLength(raw string, addr netip.Addr) (int, bool) {
	if raw == "" {
		return 0, false
	}

	if isDigits(raw) {
		n, err := strconv.Atoi(raw)
		if err != nil || n > addr.BitLen() {
			return 0, false
		}
		return n, true
	}

	if !addr.Is4() {
		return 0, false
	}
	mask, err := netip.ParseAddr(raw)
	if err != nil || !mask.Is4() {
		return 0, false
	}
	b := mask.As4()
	v := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	if n, ok := netmaskLength(v); ok {
		return n, true
	}
	return netmaskLength(^v)
}

// netmaskLength reports the prefix length of a contiguous netmask.
func netmaskLength(v uint32) (int, bool) {
	ones := bits.LeadingZeros32(^v)
	if v<<ones != 0 {
		return 0, false
	}
	return ones, true
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
