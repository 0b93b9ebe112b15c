package pcap

import "hash/crc32"

// checksumTable is the standard CRC-32 table (IEEE 802.3 polynomial,
// 0xEDB88320 reflected), used to checksum every packet's payload.
var checksumTable = crc32.MakeTable(crc32.IEEE)

// computeChecksum returns the CRC-32 (IEEE) of payload.
func computeChecksum(payload []byte) uint32 {
	return crc32.Checksum(payload, checksumTable)
}
