package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New(KindDimensionMismatch, "nn.Nearest", "got %d, want %d", 3, 5)

	assert.Equal(t, KindDimensionMismatch, err.Kind)
	assert.Equal(t, "DIMENSION_MISMATCH in nn.Nearest: got 3, want 5", err.Error())
}

func TestWrap(t *testing.T) {
	cause := errors.New("eigensolver stalled")
	err := Wrap(KindNumericDegeneracy, "spectral.Decompose", cause, "after %d iterations", 10)

	require.ErrorIs(t, err, cause)
	assert.Equal(t, cause, errors.Unwrap(err))
	assert.Contains(t, err.Error(), "eigensolver stalled")
}

func TestIs(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
		want bool
	}{
		{"matching kind", New(KindConfiguration, "op", "x"), KindConfiguration, true},
		{"other kind", New(KindConfiguration, "op", "x"), KindNumericDegeneracy, false},
		{"wrapped by fmt", fmt.Errorf("outer: %w", New(KindResourceExhaustion, "op", "x")), KindResourceExhaustion, true},
		{"plain error", errors.New("plain"), KindConfiguration, false},
		{"nil", nil, KindConfiguration, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Is(tt.err, tt.kind))
		})
	}
}

func TestSentinels(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", New(KindNumericDegeneracy, "graph.Transition", "z[3] = 0"))

	assert.ErrorIs(t, err, ErrNumericDegeneracy)
	assert.NotErrorIs(t, err, ErrConfiguration)
	assert.Equal(t, KindNumericDegeneracy, KindOf(err))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}
