package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewPhaseMachineStartsIdle(t *testing.T) {
	m := NewPhaseMachine()
	require.Equal(t, PhaseIdle, m.Current())
	require.Empty(t, m.History())
}

func TestTransitionToWalksTheHappyPathSequence(t *testing.T) {
	m := NewPhaseMachine()
	now := time.Now()

	steps := []struct {
		to   Phase
		cond string
	}{
		{PhaseMorningAlert, ConditionScheduled},
		{PhaseORBCapture, ConditionScheduled},
		{PhaseSOPrefetch, ConditionScheduled},
		{PhaseSOCollection, ConditionScheduled},
		{PhaseBatchExecution, ConditionScheduled},
		{PhaseMonitoring, ConditionScheduled},
		{PhaseEODClose, ConditionForcedClose},
		{PhaseEODReport, ConditionScheduled},
		{PhaseIdle, ConditionScheduled},
	}

	for _, s := range steps {
		require.NoError(t, m.TransitionTo(s.to, s.cond, now))
		require.Equal(t, s.to, m.Current())
	}

	require.Len(t, m.History(), len(steps))
}

func TestTransitionToRejectsAnUnlistedMove(t *testing.T) {
	m := NewPhaseMachine()
	err := m.TransitionTo(PhaseEODReport, ConditionScheduled, time.Now())
	require.Error(t, err)
	require.Equal(t, PhaseIdle, m.Current(), "a rejected transition must not move the machine")
}

func TestCanTransitionMatchesTransitionTo(t *testing.T) {
	m := NewPhaseMachine()
	require.True(t, m.CanTransition(PhaseMorningAlert, ConditionScheduled))
	require.False(t, m.CanTransition(PhaseEODReport, ConditionScheduled))
}

func TestReadOnlyAndDrainSideBranches(t *testing.T) {
	m := NewPhaseMachine()
	now := time.Now()

	require.NoError(t, m.TransitionTo(PhaseMorningAlert, ConditionScheduled, now))
	require.NoError(t, m.TransitionTo(PhaseORBCapture, ConditionScheduled, now))
	require.NoError(t, m.TransitionTo(PhaseSOPrefetch, ConditionScheduled, now))
	require.NoError(t, m.TransitionTo(PhaseSOCollection, ConditionScheduled, now))
	require.NoError(t, m.TransitionTo(PhaseBatchExecution, ConditionScheduled, now))
	require.NoError(t, m.TransitionTo(PhaseMonitoring, ConditionScheduled, now))

	require.NoError(t, m.TransitionTo(PhaseReadOnly, ConditionAuthFailure, now))
	require.NoError(t, m.TransitionTo(PhaseEODClose, ConditionForcedClose, now))

	m2 := NewPhaseMachine()
	require.NoError(t, m2.TransitionTo(PhaseMorningAlert, ConditionScheduled, now))
	require.NoError(t, m2.TransitionTo(PhaseDrain, ConditionDrainSignal, now))
	require.Equal(t, PhaseDrain, m2.Current())
}

func TestForceSetJumpsWithoutConsultingTheTable(t *testing.T) {
	m := NewPhaseMachine()
	now := time.Now()

	m.ForceSet(PhaseMonitoring, now)

	require.Equal(t, PhaseMonitoring, m.Current())
	hist := m.History()
	require.Len(t, hist, 1)
	require.Equal(t, ConditionResume, hist[0].Condition)
}

func TestCopyProducesAnIndependentSnapshot(t *testing.T) {
	m := NewPhaseMachine()
	now := time.Now()
	require.NoError(t, m.TransitionTo(PhaseMorningAlert, ConditionScheduled, now))

	c := m.Copy()
	require.NoError(t, m.TransitionTo(PhaseORBCapture, ConditionScheduled, now))

	require.Equal(t, PhaseMorningAlert, c.Current(), "the copy must not see transitions made after it was taken")
	require.Equal(t, PhaseORBCapture, m.Current())
	require.Len(t, c.History(), 1)
	require.Len(t, m.History(), 2)
}
