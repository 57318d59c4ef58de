package placeholder

import (
	"crypto/md5"
	"encoding/hex"
)

// Signature is the lowercase hex MD5 of the "Preview Not Available" image
// some cameras serve instead of a real frame.
const Signature = "64a9507f752d598345378763b25bdcaf"

// Detector recognizes a known sentinel frame by its fingerprint.
type Detector struct {
	signature string
}

// New creates a detector for the given fingerprint.
func New(signature string) *Detector {
	return &Detector{signature: signature}
}

// Default returns a detector for the "Preview Not Available" frame.
func Default() *Detector {
	return New(Signature)
}

// Fingerprint returns the lowercase hex MD5 of the full byte sequence.
func Fingerprint(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// IsPlaceholder reports whether data is the sentinel frame.
func (d *Detector) IsPlaceholder(data []byte) bool {
	return Fingerprint(data) == d.signature
}
