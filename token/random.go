// Package token generates and masks the opaque identifiers handed out by the
// session and API key managers.
package token

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"

	"github.com/cockroachdb/errors"
)

func init() {
	assertAvailablePRNG()
}

func assertAvailablePRNG() {
	// Assert that a cryptographically secure PRNG is available.
	// Panic otherwise.
	buf := make([]byte, 1)

	_, err := io.ReadFull(rand.Reader, buf)
	if err != nil {
		panic(fmt.Sprintf("crypto/rand is unavailable: Read() failed with %#v", err))
	}
}

// RandomBytes returns securely generated random bytes.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, errors.Wrap(err, "token: reading random bytes")
	}
	return b, nil
}

// Alphanumeric is the alphabet used for API key secrets.
const Alphanumeric = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// RandomString returns n characters drawn uniformly from Alphanumeric.
func RandomString(n int) (string, error) {
	return RandomStringFrom(Alphanumeric, n)
}

// RandomStringFrom returns n characters drawn uniformly from letters.
func RandomStringFrom(letters string, n int) (string, error) {
	ret := make([]byte, n)
	max := big.NewInt(int64(len(letters)))
	for i := range n {
		num, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", errors.Wrap(err, "token: reading random index")
		}
		ret[i] = letters[num.Int64()]
	}
	return string(ret), nil
}

var crockfordAlphabet = []byte("0123456789abcdefghjkmnpqrstvwxyz")

// Crockford encodes b in lowercase Crockford base32 without padding. The
// output never contains ':' so it is safe inside colon-delimited keys.
func Crockford(b []byte) string {
	out := make([]byte, 0, (len(b)*8+4)/5)
	bits := 0
	acc := 0
	for _, c := range b {
		acc = (acc<<8 | int(c)) & 0xfff
		bits += 8
		for bits >= 5 {
			bits -= 5
			out = append(out, crockfordAlphabet[(acc>>bits)&31])
		}
	}
	if bits > 0 {
		out = append(out, crockfordAlphabet[(acc<<(5-bits))&31])
	}
	return string(out)
}

// Nonce returns a short random Crockford string carrying 64 bits of entropy.
func Nonce() (string, error) {
	b, err := RandomBytes(8)
	if err != nil {
		return "", err
	}
	return Crockford(b), nil
}
