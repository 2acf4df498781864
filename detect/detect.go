// Package detect estimates key and tempo from raw mono audio.
//
// The key is the major key whose Krumhansl-Schmuckler profile correlates best
// with the chroma of the buffer. The tempo is the strongest periodicity of
// the onset envelope between MinTempo and MaxTempo.
package detect

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"github.com/hashicorp/go-hclog"
	"github.com/jsphweid/accompanist/logging"
	"github.com/jsphweid/accompanist/pitch"
	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var ErrDetectionFailed = errors.New("detection failed")

const (
	MinTempo = 60
	MaxTempo = 200

	minFreq = 60.0
	maxFreq = 2000.0

	// below this RMS the buffer is treated as silence
	silenceRMS = 1e-4
)

var majorProfile = []float64{6.35, 2.23, 3.48, 2.33, 4.38, 4.09, 2.52, 5.19, 2.39, 3.66, 2.29, 2.88}

type Estimate struct {
	Key        pitch.Class
	Tempo      int
	Confidence float64
}

type Detector interface {
	Detect(ctx context.Context, samples []float64, sampleRate int) (Estimate, error)
}

type ChromaDetector struct {
	KeyFrameSize   int
	OnsetFrameSize int
	OnsetHopSize   int
	logger         hclog.Logger
}

func NewChromaDetector(logger hclog.Logger) *ChromaDetector {
	return &ChromaDetector{
		KeyFrameSize:   4096,
		OnsetFrameSize: 1024,
		OnsetHopSize:   512,
		logger:         logging.OrNull(logger).Named("detect"),
	}
}

func (d *ChromaDetector) Detect(ctx context.Context, samples []float64, sampleRate int) (Estimate, error) {
	if sampleRate <= 0 {
		return Estimate{}, fmt.Errorf("%w: sample rate %v", ErrDetectionFailed, sampleRate)
	}
	if len(samples) < d.KeyFrameSize || len(samples) < 2*d.OnsetFrameSize {
		return Estimate{}, fmt.Errorf("%w: %v samples is too short", ErrDetectionFailed, len(samples))
	}
	if rms(samples) < silenceRMS {
		return Estimate{}, fmt.Errorf("%w: silence", ErrDetectionFailed)
	}

	chroma, err := d.chroma(ctx, samples, sampleRate)
	if err != nil {
		return Estimate{}, err
	}
	key, confidence := estimateKey(chroma)

	tempo, err := d.tempo(ctx, samples, sampleRate)
	if err != nil {
		return Estimate{}, err
	}

	d.logger.Debug("estimate", "key", key, "tempo", tempo, "confidence", confidence)
	return Estimate{Key: key, Tempo: tempo, Confidence: confidence}, nil
}

func rms(samples []float64) float64 {
	return math.Sqrt(floats.Dot(samples, samples) / float64(len(samples)))
}

// chroma sums FFT magnitudes into pitch class bins over non-overlapping
// Hann-windowed frames.
func (d *ChromaDetector) chroma(ctx context.Context, samples []float64, sampleRate int) ([]float64, error) {
	n := d.KeyFrameSize
	binHz := float64(sampleRate) / float64(n)
	res := make([]float64, pitch.NumClasses)

	frame := make([]float64, n)
	for start := 0; start+n <= len(samples); start += n {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		copy(frame, samples[start:start+n])
		window.Apply(frame, window.Hann)
		spectrum := fft.FFTReal(frame)

		for bin := 1; bin < n/2; bin++ {
			freq := float64(bin) * binHz
			if freq < minFreq || freq > maxFreq {
				continue
			}
			res[freqToPitchClass(freq)] += cmplx.Abs(spectrum[bin])
		}
	}
	return res, nil
}

func freqToPitchClass(freq float64) int {
	midi := int(math.Round(12*math.Log2(freq/440.0) + 69))
	return pitch.FromIndex(midi).Index()
}

func estimateKey(chroma []float64) (pitch.Class, float64) {
	best := 0
	bestCorr := math.Inf(-1)
	rotated := make([]float64, pitch.NumClasses)
	for key := 0; key < pitch.NumClasses; key++ {
		for i := range majorProfile {
			rotated[(i+key)%pitch.NumClasses] = majorProfile[i]
		}
		corr := stat.Correlation(chroma, rotated, nil)
		if corr > bestCorr {
			best, bestCorr = key, corr
		}
	}
	return pitch.FromIndex(best), bestCorr
}

// tempo autocorrelates the half-wave rectified energy flux.
func (d *ChromaDetector) tempo(ctx context.Context, samples []float64, sampleRate int) (int, error) {
	var energies []float64
	for start := 0; start+d.OnsetFrameSize <= len(samples); start += d.OnsetHopSize {
		frame := samples[start : start+d.OnsetFrameSize]
		energies = append(energies, floats.Dot(frame, frame))
	}

	onsets := make([]float64, len(energies))
	for i := 1; i < len(energies); i++ {
		if diff := energies[i] - energies[i-1]; diff > 0 {
			onsets[i] = diff
		}
	}
	if floats.Max(onsets) == 0 {
		return 0, fmt.Errorf("%w: no onsets", ErrDetectionFailed)
	}
	floats.Scale(1/floats.Max(onsets), onsets)

	frameRate := float64(sampleRate) / float64(d.OnsetHopSize)
	minLag := int(math.Ceil(frameRate * 60 / MaxTempo))
	maxLag := int(math.Floor(frameRate * 60 / MinTempo))
	if minLag < 1 {
		minLag = 1
	}
	if maxLag >= len(onsets) {
		maxLag = len(onsets) - 1
	}
	if minLag > maxLag {
		return 0, fmt.Errorf("%w: buffer too short for tempo", ErrDetectionFailed)
	}

	bestLag := 0
	bestScore := 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		score := floats.Dot(onsets[:len(onsets)-lag], onsets[lag:])
		if score > bestScore {
			bestLag, bestScore = lag, score
		}
	}
	if bestLag == 0 {
		return 0, fmt.Errorf("%w: no periodic onsets", ErrDetectionFailed)
	}
	return int(math.Round(frameRate * 60 / float64(bestLag))), nil
}
