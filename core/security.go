// Package core – security primitives for the VNS name service.
//
// Exposes:
//   - Sign / VerifySignature  – Ed25519 over the canonical registration payload.
//   - CheckProofOfWork / ComputeProofOfWork – SHA-256 leading-hex-zero admission puzzle.
//
// A single Ed25519 scheme only — no PKI beyond raw public keys per
// registration (§1).
package core

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log"
	"strings"
)

var secLogger = log.New(io.Discard, "[security] ", log.LstdFlags)

// SetSecurityLogger installs a destination for security-subsystem log lines.
func SetSecurityLogger(l *log.Logger) { secLogger = l }

//---------------------------------------------------------------------
// Ed25519 sign / verify over the canonical registration payload
//---------------------------------------------------------------------

// Sign signs reg's canonical byte form with priv.
func Sign(priv ed25519.PrivateKey, reg Registration) []byte {
	return ed25519.Sign(priv, CanonicalBytes(reg))
}

// VerifySignature reports whether reg.Signature verifies under
// reg.PublicKey over the canonical form of reg.
func VerifySignature(reg Registration) bool {
	if len(reg.PublicKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(reg.PublicKey), CanonicalBytes(reg), reg.Signature)
}

// VerifyTransferAuth reports whether sig verifies under ownerPubKey over the
// transfer-authorization tuple (name, newOwner, nowMs).
func VerifyTransferAuth(ownerPubKey []byte, sig []byte, name, newOwner string, nowMs int64) bool {
	if len(ownerPubKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(ownerPubKey), TransferAuthBytes(name, newOwner, nowMs), sig)
}

//---------------------------------------------------------------------
// Proof of work: SHA-256(name:owner:nonce) hex, D leading zero digits
//---------------------------------------------------------------------

// DefaultPoWDifficulty is the number of required leading hex zero digits.
const DefaultPoWDifficulty = 3

// powHex computes the lower-case hex SHA-256 digest of "name:owner:nonce".
// Implementations must hash the UTF-8 bytes of the colon-joined string and
// test the prefix on the hex-encoded string, never on raw bytes, to remain
// interoperable across nodes (§4.1.3).
func powHex(name, owner, nonce string) string {
	sum := sha256.Sum256([]byte(name + ":" + owner + ":" + nonce))
	return hex.EncodeToString(sum[:])
}

// CheckProofOfWork reports whether nonce solves the PoW puzzle for
// (name, owner) at the given difficulty.
func CheckProofOfWork(name, owner, nonce string, difficulty int) bool {
	h := powHex(name, owner, nonce)
	if difficulty <= 0 {
		return true
	}
	if len(h) < difficulty {
		return false
	}
	return strings.Count(h[:difficulty], "0") == difficulty
}

// ErrPoWExhausted is returned by ComputeProofOfWork when no nonce is found
// within maxAttempts tries.
var ErrPoWExhausted = errors.New("proof of work: exhausted attempts")

// ComputeProofOfWork searches for a nonce solving CheckProofOfWork for
// (name, owner) at difficulty, trying nonces "0", "1", "2", ... up to
// maxAttempts. It is provided for CLI/test callers that need to mint a
// valid registration locally; nodes never compute PoW on another peer's
// behalf.
func ComputeProofOfWork(name, owner string, difficulty, maxAttempts int) (string, error) {
	for i := 0; i < maxAttempts; i++ {
		nonce := itoa(i)
		if CheckProofOfWork(name, owner, nonce, difficulty) {
			return nonce, nil
		}
	}
	return "", ErrPoWExhausted
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}
