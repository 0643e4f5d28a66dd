package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
)

const (
	// DefaultVerifierLength is the verifier length used for every login attempt.
	DefaultVerifierLength = 64
	// MinVerifierLength and MaxVerifierLength bound the verifier per RFC 7636.
	MinVerifierLength = 43
	MaxVerifierLength = 128

	// ChallengeMethodS256 is the only challenge method this client sends.
	ChallengeMethodS256 = "S256"

	verifierAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	// largest multiple of len(verifierAlphabet) that fits in a byte; bytes at or
	// above it are rejected so every character is equally likely.
	verifierRejectAbove = 256 - 256%len(verifierAlphabet)
)

// RandomSource supplies the random bytes for verifiers. crypto/rand.Reader is the default.
type RandomSource interface {
	io.Reader
}

// Digest hashes the verifier for the S256 challenge.
type Digest interface {
	Sum(data []byte) []byte
}

type sha256Digest struct{}

func (sha256Digest) Sum(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// SHA256 is the Digest mandated by the S256 challenge method.
var SHA256 Digest = sha256Digest{}

// CryptoRandom is the default RandomSource.
var CryptoRandom RandomSource = rand.Reader

// GenerateVerifier draws length characters uniformly from [A-Za-z0-9].
func GenerateVerifier(src RandomSource, length int) (string, error) {
	if length < MinVerifierLength || length > MaxVerifierLength {
		return "", fmt.Errorf("verifier length %d outside [%d,%d]", length, MinVerifierLength, MaxVerifierLength)
	}
	if src == nil {
		src = CryptoRandom
	}
	out := make([]byte, 0, length)
	buf := make([]byte, length)
	for len(out) < length {
		if _, err := io.ReadFull(src, buf); err != nil {
			return "", fmt.Errorf("failed to generate verifier: %w", err)
		}
		for _, b := range buf {
			if int(b) >= verifierRejectAbove {
				continue
			}
			out = append(out, verifierAlphabet[int(b)%len(verifierAlphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}

// DeriveChallenge returns base64url(digest(verifier)) without padding.
func DeriveChallenge(d Digest, verifier string) string {
	if d == nil {
		d = SHA256
	}
	return base64.RawURLEncoding.EncodeToString(d.Sum([]byte(verifier)))
}
