package auth

import (
	"net"
	"strings"
	"time"
)

// Lockout ladder: three consecutive failures lock for one minute, the fifth
// escalates to two minutes, and every failure past that re-locks for five.
const (
	WarnThreshold     = 3
	EscalateThreshold = 5

	warnLockDuration     = time.Minute
	escalateLockDuration = 2 * time.Minute
	severeLockDuration   = 5 * time.Minute

	// IPDisclosureThreshold is the failure count from which the full,
	// non-anonymised client IP is recorded for audit.
	IPDisclosureThreshold = 10
)

// LockPhase labels the governor's escalation states.
type LockPhase string

const (
	PhaseOpen      LockPhase = "open"
	PhaseWarned    LockPhase = "warned"
	PhaseEscalated LockPhase = "escalated"
	PhaseSevere    LockPhase = "severe"
)

// LockState is the per-account failure-governor state. It is a plain value:
// transitions return a new state and callers persist it explicitly.
type LockState struct {
	FailedAttempts int
	LastFailedAt   *time.Time
	LockedUntil    *time.Time
}

// Fail records one failed authentication attempt and escalates the lockout
// according to the ladder.
func Fail(state LockState, now time.Time) LockState {
	state.FailedAttempts++
	state.LastFailedAt = &now

	var lock time.Duration
	switch {
	case state.FailedAttempts > EscalateThreshold:
		lock = severeLockDuration
	case state.FailedAttempts == EscalateThreshold:
		lock = escalateLockDuration
	case state.FailedAttempts == WarnThreshold:
		lock = warnLockDuration
	default:
		return state
	}

	until := now.Add(lock)
	state.LockedUntil = &until
	return state
}

// Reset clears the governor after a successful authentication.
func Reset() LockState {
	return LockState{}
}

// Locked reports whether the lockout is currently active.
func Locked(state LockState, now time.Time) bool {
	return state.LockedUntil != nil && state.LockedUntil.After(now)
}

// Remaining returns how long the active lockout still has to run.
func Remaining(state LockState, now time.Time) time.Duration {
	if state.LockedUntil == nil {
		return 0
	}
	remaining := state.LockedUntil.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Phase classifies the state for audit and test purposes.
func Phase(state LockState, now time.Time) LockPhase {
	if !Locked(state, now) && state.FailedAttempts < WarnThreshold {
		return PhaseOpen
	}
	switch {
	case state.FailedAttempts > EscalateThreshold:
		return PhaseSevere
	case state.FailedAttempts >= EscalateThreshold:
		return PhaseEscalated
	case state.FailedAttempts >= WarnThreshold:
		return PhaseWarned
	default:
		return PhaseOpen
	}
}

// DiscloseIP reports whether the audit trail may carry the full client IP for
// this state. Below the threshold the anonymised form is used instead.
func DiscloseIP(state LockState) bool {
	return state.FailedAttempts >= IPDisclosureThreshold
}

// AnonymizeIP masks the host portion of an address: the final octet for IPv4,
// everything past the /48 for IPv6. Unparseable input is dropped entirely.
func AnonymizeIP(ip string) string {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return ""
	}

	if v4 := parsed.To4(); v4 != nil {
		masked := v4.Mask(net.CIDRMask(24, 32))
		return masked.String()
	}

	masked := parsed.Mask(net.CIDRMask(48, 128))
	return masked.String()
}
