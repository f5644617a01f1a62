package core

import (
	"crypto/sha512"
	"encoding/hex"
)

const (
	digestPrefix = " "
	digestSuffix = "math"
)

// Digest returns the hex encoded sha512 of data wrapped in the fixed prefix and suffix.
func Digest(data []byte) string {
	h := sha512.New()
	h.Write([]byte(digestPrefix))
	h.Write(data)
	h.Write([]byte(digestSuffix))
	return hex.EncodeToString(h.Sum(nil))
}

func VerifyDigest(data []byte, digest string) bool {
	return Digest(data) == digest
}
