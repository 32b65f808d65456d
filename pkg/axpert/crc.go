package axpert

// CRC-16/XMODEM parameters used by the inverter for both requests and
// responses: polynomial 0x1021, initial value 0x0000, no reflection, no
// final XOR. A single differing bit invalidates every exchange, so this
// must match the device implementation exactly.
const (
	crcPolynomial  = 0x1021
	crcHighBitMask = 0x8000
)

// crc16 computes the CRC-16/XMODEM checksum of data.
func crc16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&crcHighBitMask != 0 {
				crc = (crc << 1) ^ crcPolynomial
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
