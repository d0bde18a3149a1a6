package rand_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nozzle/diffmap/internal/rand"
)

func TestMT19937VsNumpy(t *testing.T) {
	mt := rand.NewMT19937(42)

	// numpy.random.RandomState(42).uniform(-10, 10, 10)
	expected := []float64{
		-2.509197623052750,
		9.014286128198323,
		4.639878836228101,
		1.973169683940732,
		-6.879627191151270,
		-6.880109593275947,
		-8.838327756636010,
		7.323522915498703,
		2.022300234864176,
		4.161451555920910,
	}

	for i, exp := range expected {
		assert.InDelta(t, exp, mt.Uniform(-10.0, 10.0), 1e-6, "value %d", i)
	}
}

func TestFillUniformIsDeterministic(t *testing.T) {
	a := make([]float64, 16)
	b := make([]float64, 16)
	rand.NewMT19937(7).FillUniform(a, -1, 1)
	rand.NewMT19937(7).FillUniform(b, -1, 1)

	assert.Equal(t, a, b)
	for _, v := range a {
		assert.GreaterOrEqual(t, v, -1.0)
		assert.Less(t, v, 1.0)
	}
}

func TestTauIntnRange(t *testing.T) {
	s := rand.New(42)
	for range 1000 {
		v := rand.Intn(&s, 17)
		assert.GreaterOrEqual(t, v, 0)
		assert.Less(t, v, 17)
	}
}
