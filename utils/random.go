package utils

import (
	"crypto/rand"
	"math/big"
)

const randomAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateRandomString returns n characters from an unambiguous upper-case
// alphabet.
func GenerateRandomString(n int) string {
	return randomFrom(randomAlphabet, n)
}

// GenerateOTP returns an n digit numeric code.
func GenerateOTP(n int) string {
	return randomFrom("0123456789", n)
}

func randomFrom(alphabet string, n int) string {
	out := make([]byte, n)
	max := big.NewInt(int64(len(alphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("crypto/rand unavailable: " + err.Error())
		}
		out[i] = alphabet[idx.Int64()]
	}
	return string(out)
}
