package transport

// crcPoly is the generator x^16 + x^12 + x^5 + 1 without the implicit x^16 term.
const crcPoly = (1 << 5) | (1 << 12)

// crc16 computes the control frame checksum. The register starts at all ones,
// feeds each byte MSB first with the carried-out bit rotated back into the
// LSB, and the result is the inverted low 16 bits.
func crc16(data []byte) uint16 {
	state := ^uint32(0)
	for _, b := range data {
		for i := 0; i < 8; i++ {
			state <<= 1
			if state&(1<<16) != 0 {
				state |= 1
			}
			if b&(1<<(7-i)) != 0 {
				state ^= 1
			}
			if state&1 != 0 {
				state ^= crcPoly
			}
		}
	}
	return uint16(^state & 0xFFFF)
}
