package core

import (
	"fmt"
	"strings"
	"time"
)

// Admission composes proof-of-work, rate limiting, signature verification
// and structural bounds into the single gate every mutation — local or
// remote — must pass through (§4.1).
type Admission struct {
	Limiter    *RateLimiter
	Difficulty int
	// AllowNoPoW skips only the proof-of-work check when true. vnsd sets it
	// from admission.allow_no_pow / VNS_ALLOW_NO_POW so that registrations
	// minted with the CLI's --no-pow flag are admitted during local
	// development. It never affects signature, structural or rate-limit
	// checks. It is a node-local setting no peer can change, but it applies
	// to every Validate call on this gate, including the re-validation of
	// inbound deltas in ApplyDelta.
	AllowNoPoW bool
	clock      func() time.Time
	metrics    *Metrics
}

// NewAdmission constructs an Admission gate at the given PoW difficulty,
// backed by a fresh RateLimiter.
func NewAdmission(difficulty int) *Admission {
	if difficulty <= 0 {
		difficulty = DefaultPoWDifficulty
	}
	return &Admission{
		Limiter:    NewRateLimiter(DefaultRateLimit, DefaultRateWindow),
		Difficulty: difficulty,
		clock:      time.Now,
	}
}

// SetMetrics installs the Metrics instance Validate reports rejections to.
// A nil Admission.metrics (the default) is valid and simply skips reporting.
func (a *Admission) SetMetrics(m *Metrics) { a.metrics = m }

func (a *Admission) now() time.Time {
	if a.clock != nil {
		return a.clock()
	}
	return time.Now()
}

// Validate runs the admission checks in the order fixed by §4.1: rate
// limit, structural bounds, proof of work, signature. Only on the final Ok
// does it commit the source peer's rate-limit quota, so malformed traffic
// never exhausts an honest peer's allowance.
func (a *Admission) Validate(reg Registration, sourcePeer string) error {
	reject := func(err error) error {
		a.metrics.admissionRejected(ErrorKind(err))
		return err
	}

	if !a.Limiter.Allow(sourcePeer) {
		return reject(admissionErr(ErrRateLimited, fmt.Sprintf("peer %s exceeded %d/%s", sourcePeer, a.Limiter.limit, a.Limiter.window)))
	}

	if err := validateStructure(reg, a.now()); err != nil {
		return reject(err)
	}

	if !a.AllowNoPoW {
		if !CheckProofOfWork(reg.Name, reg.Owner, reg.Nonce, a.Difficulty) {
			return reject(admissionErr(ErrBadProofOfWork, fmt.Sprintf("difficulty %d not met", a.Difficulty)))
		}
	}

	if len(reg.PublicKey) == 0 {
		return reject(admissionErr(ErrMissingKey, ""))
	}
	if !VerifySignature(reg) {
		return reject(admissionErr(ErrBadSignature, ""))
	}

	// Stake verification is a declared hook; on-chain settlement is out of
	// scope (§1 Non-goals) so it always succeeds.
	if err := checkStake(reg); err != nil {
		return reject(err)
	}

	a.Limiter.Commit(sourcePeer)
	return nil
}

// checkStake is the stake-verification extension point named in §4.1. The
// core has no on-chain settlement (§1 Non-goals: "the stake check is a hook
// left unimplemented"), so it always returns nil.
func checkStake(_ Registration) error { return nil }

const (
	minLabelLen = 3
	maxLabelLen = 63
)

var reservedLabels = map[string]bool{
	"root": true, "admin": true, "sync": true, "bootstrap": true,
}

// NormalizeName lowercases and trims name, appending the TLD if missing.
func NormalizeName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	if !strings.HasSuffix(n, TLD) {
		n += TLD
	}
	return n
}

// ValidateNameGrammar enforces §6's name grammar over the already-normalized
// name and reports whether label is reserved.
func ValidateNameGrammar(name string) (label string, reserved bool, err error) {
	if !strings.HasSuffix(name, TLD) {
		return "", false, admissionErr(ErrInvalidName, "missing "+TLD+" suffix")
	}
	label = strings.TrimSuffix(name, TLD)
	if len(label) < minLabelLen || len(label) > maxLabelLen {
		return "", false, admissionErr(ErrInvalidName, fmt.Sprintf("label length %d out of [%d,%d]", len(label), minLabelLen, maxLabelLen))
	}
	for _, r := range label {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_' || r == '-') {
			return "", false, admissionErr(ErrInvalidName, "invalid character in label")
		}
	}
	if label[0] == '-' || label[len(label)-1] == '-' {
		return "", false, admissionErr(ErrInvalidName, "label may not begin or end with '-'")
	}
	reserved = reservedLabels[label]
	return label, reserved, nil
}

// validateStructure enforces the structural bounds of §4.1.2: name grammar,
// record-count bound, and lease-window tolerance.
func validateStructure(reg Registration, now time.Time) error {
	if _, _, err := ValidateNameGrammar(reg.Name); err != nil {
		return err
	}
	if len(reg.Records) > MaxRecords {
		return admissionErr(ErrTooManyRecords, fmt.Sprintf("%d > %d", len(reg.Records), MaxRecords))
	}

	leaseMs := int64(LeasePeriod / time.Millisecond)
	toleranceMs := int64(LeaseTolerance / time.Millisecond)
	want := reg.TimestampMs + leaseMs
	diff := reg.ExpiresMs - want
	if diff < -toleranceMs || diff > toleranceMs {
		return admissionErr(ErrLeaseOutOfRange, fmt.Sprintf("expires %d not within %dms of %d", reg.ExpiresMs, toleranceMs, want))
	}

	if reg.ExpiresMs <= now.UnixMilli() {
		return admissionErr(ErrLeaseOutOfRange, "already expired")
	}
	return nil
}
