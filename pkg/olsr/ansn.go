package olsr

// ansnNewer implements the wraparound-aware ANSN comparison used by OLSR
// §4.4: "s1 > s2 ⇔ (s1 − s2) mod 2^16 < 2^15", applied even when no ANSN has
// been stored yet (an unset stored value is treated as older than anything).
func ansnNewer(candidate uint16, stored uint16, haveStored bool) bool {
	if !haveStored {
		return true
	}
	if candidate == stored {
		return false
	}
	diff := candidate - stored // wraps modulo 2^16 by construction
	return diff < 1<<15
}
