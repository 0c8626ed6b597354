package mpegts

// MPEG-2 CRC32, polynomial 0x04C11DB7, not reflected.
var crcTable [256]uint32

func init() {
	for i := range crcTable {
		crc := uint32(i) << 24 //nolint:gosec // i < 256
		for range 8 {
			if crc&0x80000000 != 0 {
				crc = crc<<1 ^ 0x04C11DB7
			} else {
				crc <<= 1
			}
		}
		crcTable[i] = crc
	}
}

func crc32(data []byte) uint32 {
	crc := uint32(0xFFFFFFFF)
	for _, b := range data {
		crc = crc<<8 ^ crcTable[byte(crc>>24)^b]
	}
	return crc
}
