package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRequest(source string) DecodeRequest {
	return NewDecodeRequest(source, "", DecodeOptions{UseCache: true})
}

func TestRequestTransitionsMonotonic(t *testing.T) {
	t.Parallel()

	rs := NewRequest(testRequest("a"))
	assert.Equal(t, PhaseIdle, rs.State().Phase())

	require.True(t, rs.begin())
	assert.Equal(t, PhaseLoading, rs.State().Phase())

	// Loading is entered exactly once.
	assert.False(t, rs.begin())

	res := &DecodeResult{Width: 1, Height: 1}
	require.True(t, rs.succeed(res, false))
	assert.Equal(t, PhaseSuccess, rs.State().Phase())

	// No transition leaves a terminal state.
	assert.False(t, rs.succeed(res, false))
	assert.False(t, rs.fail(assert.AnError))
	assert.False(t, rs.begin())
	assert.Equal(t, PhaseSuccess, rs.State().Phase())
}

func TestRequestFailureIsTerminal(t *testing.T) {
	t.Parallel()

	rs := NewRequest(testRequest("a"))
	require.True(t, rs.begin())
	require.True(t, rs.fail(assert.AnError))

	assert.Equal(t, PhaseFailure, rs.State().Phase())
	assert.Equal(t, assert.AnError, rs.Err())
	assert.False(t, rs.succeed(&DecodeResult{}, false))
	assert.Equal(t, PhaseFailure, rs.State().Phase())
}

func TestRequestCannotSkipLoading(t *testing.T) {
	t.Parallel()

	rs := NewRequest(testRequest("a"))
	assert.False(t, rs.succeed(&DecodeResult{}, false))
	assert.False(t, rs.fail(assert.AnError))
	assert.Equal(t, PhaseIdle, rs.State().Phase())
}

func TestRequestAbandon(t *testing.T) {
	t.Parallel()

	rs := NewRequest(testRequest("a"))
	require.True(t, rs.begin())
	require.True(t, rs.abandon())

	assert.True(t, rs.Cancelled())
	// The abandoned request never reaches a terminal state.
	assert.False(t, rs.succeed(&DecodeResult{}, false))
	assert.False(t, rs.fail(assert.AnError))
	assert.Equal(t, PhaseLoading, rs.State().Phase())

	select {
	case <-rs.Done():
	default:
		t.Fatal("Done must be closed after abandon")
	}

	assert.False(t, rs.abandon())
}

func TestRequestAbandonAfterTerminalIsNoop(t *testing.T) {
	t.Parallel()

	rs := NewRequest(testRequest("a"))
	require.True(t, rs.begin())
	require.True(t, rs.succeed(&DecodeResult{}, false))
	assert.False(t, rs.abandon())
	assert.False(t, rs.Cancelled())
}

func TestRequestObserversSeeTransitions(t *testing.T) {
	t.Parallel()

	rs := NewRequest(testRequest("a"))
	var phases []LoadPhase
	rs.OnTransition(func(st State) { phases = append(phases, st.Phase()) })

	rs.begin()
	rs.succeed(&DecodeResult{}, true)

	require.Equal(t, []LoadPhase{PhaseLoading, PhaseSuccess}, phases)
}

func TestRequestObserverAfterTerminalFiresImmediately(t *testing.T) {
	t.Parallel()

	rs := NewRequest(testRequest("a"))
	rs.begin()
	rs.fail(assert.AnError)

	called := false
	rs.OnTransition(func(st State) {
		called = true
		assert.Equal(t, PhaseFailure, st.Phase())
	})
	assert.True(t, called)
}

func TestDecodeRequestKeyDerivation(t *testing.T) {
	t.Parallel()

	a := NewDecodeRequest("img", "", DecodeOptions{TargetWidth: 100})
	b := NewDecodeRequest("img", "", DecodeOptions{TargetWidth: 100})
	c := NewDecodeRequest("img", "", DecodeOptions{TargetWidth: 200})
	d := NewDecodeRequest("other", "", DecodeOptions{TargetWidth: 100})

	assert.Equal(t, a.Key(), b.Key(), "structurally equal requests share a key")
	assert.NotEqual(t, a.Key(), c.Key(), "options participate in the key")
	assert.NotEqual(t, a.Key(), d.Key(), "source participates in the key")

	// UseCache is a behavioural flag, not identity.
	e := NewDecodeRequest("img", "", DecodeOptions{TargetWidth: 100, UseCache: true})
	assert.Equal(t, a.Key(), e.Key())
}
