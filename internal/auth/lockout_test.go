package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLockoutLadder(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	state := LockState{}

	state = Fail(state, now)
	state = Fail(state, now)
	require.False(t, Locked(state, now))
	require.Equal(t, PhaseOpen, Phase(state, now))

	// Third failure locks for one minute.
	state = Fail(state, now)
	require.True(t, Locked(state, now))
	require.Equal(t, PhaseWarned, Phase(state, now))
	require.GreaterOrEqual(t, Remaining(state, now), time.Minute)

	// Fourth failure keeps the warned lock without escalating.
	state = Fail(state, now)
	require.Equal(t, 4, state.FailedAttempts)
	require.Equal(t, PhaseWarned, Phase(state, now))

	// Fifth failure escalates to two minutes.
	state = Fail(state, now)
	require.Equal(t, PhaseEscalated, Phase(state, now))
	require.GreaterOrEqual(t, Remaining(state, now), 2*time.Minute)

	// Anything past five re-locks for five minutes each time.
	state = Fail(state, now)
	require.Equal(t, PhaseSevere, Phase(state, now))
	require.GreaterOrEqual(t, Remaining(state, now), 5*time.Minute)

	later := now.Add(10 * time.Minute)
	require.False(t, Locked(state, later))
	state = Fail(state, later)
	require.True(t, Locked(state, later))
	require.GreaterOrEqual(t, Remaining(state, later), 5*time.Minute)
}

func TestResetClearsEverything(t *testing.T) {
	now := time.Now()
	state := LockState{}
	for i := 0; i < 7; i++ {
		state = Fail(state, now)
	}
	require.True(t, Locked(state, now))

	state = Reset()
	require.Zero(t, state.FailedAttempts)
	require.Nil(t, state.LockedUntil)
	require.False(t, Locked(state, now))
}

func TestRemainingNeverNegative(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	state := LockState{LockedUntil: &past}
	require.Equal(t, time.Duration(0), Remaining(state, now))
}

func TestDiscloseIP(t *testing.T) {
	state := LockState{FailedAttempts: 9}
	require.False(t, DiscloseIP(state))

	state.FailedAttempts = 10
	require.True(t, DiscloseIP(state))
}

func TestAnonymizeIP(t *testing.T) {
	require.Equal(t, "203.0.113.0", AnonymizeIP("203.0.113.57"))
	require.Equal(t, "2001:db8:1::", AnonymizeIP("2001:db8:1:2:3:4:5:6"))
	require.Equal(t, "", AnonymizeIP("not-an-ip"))
}
