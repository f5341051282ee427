package util

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const accessCodeDigits = 6

// GenerateAccessCode returns a zero-padded 6-digit join code. Uniqueness is
// the caller's concern; repositories retry on collision.
func GenerateAccessCode() string {
	max := big.NewInt(1)
	for i := 0; i < accessCodeDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		// crypto/rand only fails when the OS entropy source is broken.
		panic(fmt.Sprintf("util.GenerateAccessCode: %v", err))
	}

	return fmt.Sprintf("%0*d", accessCodeDigits, n)
}
