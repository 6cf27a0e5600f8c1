package chat

import "strconv"

// IPv4 is an IPv4 address held as a 32-bit value with the first octet in
// the most significant byte.
type IPv4 uint32

// IPv4FromBytes builds an IPv4 from the four octets in network order.
func IPv4FromBytes(b [4]byte) IPv4 {
	return IPv4(uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]))
}

// String renders the address in dotted-decimal form.
func (a IPv4) String() string {
	buf := make([]byte, 0, 15)
	for shift := 24; shift >= 0; shift -= 8 {
		buf = strconv.AppendUint(buf, uint64(uint32(a)>>shift&0xFF), 10)
		if shift > 0 {
			buf = append(buf, '.')
		}
	}
	return string(buf)
}
