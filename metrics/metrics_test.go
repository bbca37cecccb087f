package metrics

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maastricht-university/pitchbench/pitch"
)

func TestEvaluateScenarios(t *testing.T) {
	e := NewEvaluator(DefaultTolerance)

	t.Run("exact prediction", func(t *testing.T) {
		gt := pitch.Series{{Time: 0, Frequency: 0}, {Time: 0.01, Frequency: 440}, {Time: 0.02, Frequency: 440}}
		s, err := e.Evaluate(gt, gt)
		require.NoError(t, err)
		assert.Equal(t, 1.0, s.OA)
		assert.Equal(t, 1.0, s.RPA)
		assert.Equal(t, 1.0, s.RCA)
		assert.Equal(t, 1.0, s.VR)
		assert.Equal(t, 3, s.Frames)
		assert.Equal(t, 2, s.VoicedFrames)
	})

	t.Run("silent prediction on voiced frame", func(t *testing.T) {
		gt := pitch.Series{{Time: 0, Frequency: 0}, {Time: 0.01, Frequency: 440}}
		pred := pitch.Series{{Time: 0, Frequency: 0}, {Time: 0.01, Frequency: 0}}
		s, err := e.Evaluate(gt, pred)
		require.NoError(t, err)
		assert.Equal(t, 0.0, s.RPA)
		assert.Equal(t, 0.0, s.VR)
		assert.Equal(t, 0.5, s.OA)
	})

	t.Run("octave error", func(t *testing.T) {
		gt := pitch.Series{{Time: 0, Frequency: 440}}
		pred := pitch.Series{{Time: 0, Frequency: 880}}
		s, err := e.Evaluate(gt, pred)
		require.NoError(t, err)
		assert.Equal(t, 0.0, s.RPA)
		assert.Equal(t, 1.0, s.RCA)
		assert.Equal(t, 1.0, s.VR)
		assert.Equal(t, 0.0, s.OA)
	})

	t.Run("all unvoiced", func(t *testing.T) {
		gt := pitch.Series{{Time: 0, Frequency: 0}, {Time: 0.01, Frequency: 0}, {Time: 0.02, Frequency: 0}}
		s, err := e.Evaluate(gt, gt)
		require.NoError(t, err)
		assert.Equal(t, 1.0, s.OA)
		assert.True(t, IsUndefined(s.RPA))
		assert.True(t, IsUndefined(s.RCA))
		assert.True(t, IsUndefined(s.VR))
		assert.False(t, s.Defined())
	})
}

func TestEvaluateTolerance(t *testing.T) {
	gt := pitch.Series{{Time: 0, Frequency: 440}, {Time: 0.01, Frequency: 440}, {Time: 0.02, Frequency: 440}}
	pred := pitch.Series{
		{Time: 0, Frequency: 440 * math.Pow(2, 49.0/1200)},     // inside
		{Time: 0.01, Frequency: 440 * math.Pow(2, -51.0/1200)}, // outside
		{Time: 0.02, Frequency: 220 * math.Pow(2, 10.0/1200)},  // octave below, chroma inside
	}
	s, err := NewEvaluator(0).Evaluate(gt, pred)
	require.NoError(t, err)
	assert.InDelta(t, 1.0/3, s.RPA, 1e-12)
	assert.InDelta(t, 2.0/3, s.RCA, 1e-12)
	assert.Equal(t, 1.0, s.VR)

	wide, err := NewEvaluator(100).Evaluate(gt, pred)
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3, wide.RPA, 1e-12)
	assert.Equal(t, 100.0, NewEvaluator(100).Tolerance())
}

func TestEvaluateToleranceBoundary(t *testing.T) {
	e := NewEvaluator(0)
	for _, f := range []float64{55, 110, 196, 261.6255653005986, 440, 523.25, 880, 1046.5, 1760, 3520} {
		gt := pitch.Series{{Time: 0, Frequency: f}, {Time: 0.01, Frequency: f}}
		for _, shift := range []float64{-50, 50} {
			pred := pitch.Series{
				{Time: 0, Frequency: f * math.Pow(2, shift/1200)},
				{Time: 0.01, Frequency: f * math.Pow(2, (shift+math.Copysign(0.01, shift))/1200)},
			}
			s, err := e.Evaluate(gt, pred)
			require.NoError(t, err)
			assert.Equal(t, 0.5, s.RPA, "%v Hz shifted %v cents", f, shift)
			assert.Equal(t, 0.5, s.RCA, "%v Hz shifted %v cents", f, shift)
		}
	}
}

func TestEvaluateFalseVoicing(t *testing.T) {
	gt := pitch.Series{{Time: 0, Frequency: 0}, {Time: 0.01, Frequency: 0}, {Time: 0.02, Frequency: 300}, {Time: 0.03, Frequency: 300}}
	pred := pitch.Series{{Time: 0, Frequency: 150}, {Time: 0.01, Frequency: 0}, {Time: 0.02, Frequency: 300}, {Time: 0.03, Frequency: 0}}
	s, err := NewEvaluator(0).Evaluate(gt, pred)
	require.NoError(t, err)
	assert.Equal(t, 0.5, s.OA)
	assert.Equal(t, 0.5, s.RPA)
	assert.Equal(t, 0.5, s.VR)
}

func TestEvaluateAlignment(t *testing.T) {
	e := NewEvaluator(0)
	gt := pitch.Series{{Time: 0, Frequency: 0}, {Time: 0.01, Frequency: 440}}

	_, err := e.Evaluate(gt, pitch.Series{{Time: 0, Frequency: 0}})
	require.ErrorIs(t, err, pitch.ErrAlignment)
	var ae *pitch.AlignmentError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, -1, ae.Index)

	_, err = e.Evaluate(gt, pitch.Series{{Time: 0, Frequency: 0}, {Time: 0.0101, Frequency: 440}})
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, 1, ae.Index)

	_, err = e.Evaluate(gt, pitch.Series{{Time: 0, Frequency: 0}, {Time: 0.01 + 1e-12, Frequency: 440}})
	assert.NoError(t, err)
}

func TestEvaluateMalformed(t *testing.T) {
	e := NewEvaluator(0)
	_, err := e.Evaluate(nil, nil)
	assert.ErrorIs(t, err, pitch.ErrMalformedSeries)

	_, err = e.Evaluate(pitch.Series{{Time: 0, Frequency: 440}}, pitch.Series{{Time: 0, Frequency: -440}})
	assert.ErrorIs(t, err, pitch.ErrMalformedSeries)
	assert.NotErrorIs(t, err, pitch.ErrAlignment)
}

func TestEvaluateProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	e := NewEvaluator(0)
	for iter := 0; iter < 300; iter++ {
		n := 1 + rng.Intn(50)
		gt := make(pitch.Series, n)
		pred := make(pitch.Series, n)
		for i := range gt {
			ts := float64(i) * 0.01
			gt[i] = pitch.Frame{Time: ts, Frequency: randomPitch(rng)}
			pred[i] = pitch.Frame{Time: ts, Frequency: randomPitch(rng)}
		}
		s, err := e.Evaluate(gt, pred)
		require.NoError(t, err)
		for _, m := range Names {
			v := s.Get(m)
			if IsUndefined(v) {
				require.NotEqual(t, OA, m)
				require.False(t, s.Defined())
				continue
			}
			require.GreaterOrEqual(t, v, 0.0)
			require.LessOrEqual(t, v, 1.0)
		}
		if s.Defined() {
			require.GreaterOrEqual(t, s.RCA, s.RPA)
			require.GreaterOrEqual(t, s.VR, s.RPA)
		}
	}
}

func randomPitch(rng *rand.Rand) float64 {
	if rng.Intn(3) == 0 {
		return 0
	}
	return 440 * math.Pow(2, float64(rng.Intn(7)-3)+rng.NormFloat64()*0.05)
}

func TestCentsAndChroma(t *testing.T) {
	assert.InDelta(t, 1200, Cents(880, 440), 1e-9)
	assert.InDelta(t, -1200, Cents(220, 440), 1e-9)
	assert.InDelta(t, 0, Chroma(2400), 1e-9)
	assert.InDelta(t, 100, Chroma(1300), 1e-9)
	assert.InDelta(t, -100, Chroma(1100), 1e-9)
	assert.LessOrEqual(t, math.Abs(Chroma(-1900)), 600.0)
}

func TestGetUnknown(t *testing.T) {
	assert.True(t, IsUndefined(Scores{}.Get("F1")))
}
