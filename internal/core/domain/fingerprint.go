package domain

import (
	"hash/crc32"
	"strconv"
)

// Checksum returns the CRC-32 (IEEE, reflected polynomial 0xEDB88320)
// fingerprint of data. It is deterministic and cheap, not cryptographically
// secure.
func Checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// DeriveID builds an identity for a record whose source supplies none:
// base36(checksum) followed by base36(len(serialized)).
// Collisions are possible and tolerated.
func DeriveID(serialized []byte, checksum uint32) string {
	return base36(uint64(checksum)) + base36(uint64(len(serialized)))
}

// AssetKey derives the local filename for an asset owned by recordID.
// It is a pure function of its arguments so the key can be recomputed
// for lookup without re-downloading.
func AssetKey(recordID, reference string) string {
	return recordID + "-" + base36(uint64(Checksum([]byte(reference)))) + base36(uint64(len(reference)))
}

func base36(v uint64) string {
	return strconv.FormatUint(v, 36)
}
