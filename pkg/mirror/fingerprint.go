package mirror

import "crypto/sha256"

// Fingerprint is a cryptographic hash of a file's byte content. It detects
// true content changes versus touch-only notifications, which editors emit
// several of per logical save.
type Fingerprint [sha256.Size]byte

// FingerprintBytes hashes b.
func FingerprintBytes(b []byte) Fingerprint {
	return sha256.Sum256(b)
}
