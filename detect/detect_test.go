package detect

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

const testRate = 8000

func testDetector() *ChromaDetector {
	d := NewChromaDetector(nil)
	d.OnsetFrameSize = 500
	d.OnsetHopSize = 250
	return d
}

func tone(samples []float64, freq, amp float64, start, length int) {
	for i := start; i < start+length && i < len(samples); i++ {
		samples[i] += amp * math.Sin(2*math.Pi*freq*float64(i)/testRate)
	}
}

// dMajorAt120 is a sustained D major triad with a D5 blip on every beat.
func dMajorAt120(seconds int) []float64 {
	samples := make([]float64, seconds*testRate)
	for _, f := range []float64{293.66, 369.99, 440.0} {
		tone(samples, f, 0.2, 0, len(samples))
	}
	beat := testRate / 2
	for start := 0; start < len(samples); start += beat {
		tone(samples, 587.33, 1.0, start, 200)
	}
	return samples
}

func TestDetectKeyAndTempo(t *testing.T) {
	assert := assert.New(t)
	est, err := testDetector().Detect(context.Background(), dMajorAt120(4), testRate)
	assert.NoError(err)
	assert.Equal("D", est.Key.String())
	assert.InDelta(120, est.Tempo, 2)
	assert.Greater(est.Confidence, 0.3)
}

func TestDetectRejectsSilence(t *testing.T) {
	_, err := testDetector().Detect(context.Background(), make([]float64, 4*testRate), testRate)
	assert.True(t, errors.Is(err, ErrDetectionFailed))
}

func TestDetectRejectsShortBuffers(t *testing.T) {
	_, err := testDetector().Detect(context.Background(), dMajorAt120(4)[:1000], testRate)
	assert.True(t, errors.Is(err, ErrDetectionFailed))
}

func TestDetectRejectsBadSampleRate(t *testing.T) {
	_, err := testDetector().Detect(context.Background(), dMajorAt120(4), 0)
	assert.True(t, errors.Is(err, ErrDetectionFailed))
}

func TestDetectHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := testDetector().Detect(ctx, dMajorAt120(4), testRate)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestFreqToPitchClass(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(9, freqToPitchClass(440))
	assert.Equal(9, freqToPitchClass(880))
	assert.Equal(0, freqToPitchClass(261.63))
	assert.Equal(2, freqToPitchClass(293.66))
}

func TestWindowKeepsMostRecent(t *testing.T) {
	assert := assert.New(t)
	w := NewWindow(5)
	assert.Equal(3, w.Push([]float64{1, 2, 3}))
	assert.Equal(5, w.Push([]float64{4, 5, 6, 7}))
	assert.Equal([]float64{3, 4, 5, 6, 7}, w.Snapshot())

	w.Clear()
	assert.Equal(0, w.Len())
	w.Push([]float64{8})
	assert.Equal([]float64{8}, w.Snapshot())
}
