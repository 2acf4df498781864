package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jsphweid/accompanist/chord"
	"github.com/jsphweid/accompanist/detect"
	"github.com/jsphweid/accompanist/model"
	"github.com/jsphweid/accompanist/pitch"
	"github.com/jsphweid/accompanist/session"
	"github.com/stretchr/testify/assert"
)

const testRate = 100

type fakeDetector struct {
	estimate detect.Estimate
	err      error
	calls    int
	lastLen  int
	during   func()
}

func (f *fakeDetector) Detect(ctx context.Context, samples []float64, sampleRate int) (detect.Estimate, error) {
	f.calls++
	f.lastLen = len(samples)
	if f.during != nil {
		f.during()
	}
	return f.estimate, f.err
}

func newHandler(t *testing.T, det detect.Detector) (*Handler, *session.Session) {
	t.Helper()
	key, _ := pitch.Parse("D")
	store, err := session.NewStore(session.Defaults{
		Progression: chord.MustParseProgression(chord.DefaultProgression),
		Key:         key,
		Tempo:       30,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	h := NewHandler(store, Options{Detector: det, SampleRate: testRate, WindowSeconds: 3})
	return h, store.Create()
}

func envelope(t *testing.T, event string, data any) model.Envelope {
	t.Helper()
	env, err := model.NewEnvelope(event, data)
	if err != nil {
		t.Fatal(err)
	}
	return env
}

func strPtr(s string) *string { return &s }

func TestStartListeningReportsDefaults(t *testing.T) {
	assert := assert.New(t)
	h, s := newHandler(t, &fakeDetector{})

	out := h.Dispatch(context.Background(), s, model.Envelope{Event: model.EventStartListening})
	assert.Equal(model.EventListeningStarted, out.Event)

	var kt model.KeyTempo
	assert.NoError(json.Unmarshal(out.Data, &kt))
	assert.Equal(model.KeyTempo{Tempo: 30, Key: "D"}, kt)
}

func TestRequestChordSequence(t *testing.T) {
	assert := assert.New(t)
	h, s := newHandler(t, &fakeDetector{})
	ctx := context.Background()

	var got []string
	for _, note := range []string{"C", "A", "A", "A", "A"} {
		out := h.Dispatch(ctx, s, envelope(t, model.EventRequestChord, model.ChordRequest{MelodyNote: strPtr(note)}))
		assert.Equal(model.EventChord, out.Event)
		var res model.ChordResponse
		assert.NoError(json.Unmarshal(out.Data, &res))
		assert.Equal("D", res.Key)
		got = append(got, fmt.Sprintf("%v:%v", res.Degree, res.Chord))
	}
	assert.Equal([]string{"vi:B", "IV:G", "I:D", "V:A", "vi:B"}, got)
}

func TestRequestChordAcceptsMidiNote(t *testing.T) {
	h, s := newHandler(t, &fakeDetector{})
	note := uint8(67) // G4
	res, err := h.RequestChord(s, model.ChordRequest{MelodyMidi: &note})
	assert.NoError(t, err)
	assert.Equal(t, "G", res.Chord)
}

func TestRequestChordNamedNoteWinsOverMidi(t *testing.T) {
	h, s := newHandler(t, &fakeDetector{})
	note := uint8(67)
	res, err := h.RequestChord(s, model.ChordRequest{MelodyNote: strPtr("A"), MelodyMidi: &note})
	assert.NoError(t, err)
	assert.Equal(t, "A", res.Chord)
}

func TestRequestChordWithoutPayload(t *testing.T) {
	assert := assert.New(t)
	h, s := newHandler(t, &fakeDetector{})
	out := h.Dispatch(context.Background(), s, model.Envelope{Event: model.EventRequestChord})
	var res model.ChordResponse
	assert.NoError(json.Unmarshal(out.Data, &res))
	assert.Equal("D", res.Chord)
	assert.Equal(session.Fresh, s.Snapshot().State)
}

func TestErrorsBecomeErrorEnvelopes(t *testing.T) {
	cases := []struct {
		name string
		in   model.Envelope
		want string
	}{
		{"unknown melody", envelope(t, model.EventRequestChord, model.ChordRequest{MelodyNote: strPtr("H")}), "unknown pitch class"},
		{"unknown event", model.Envelope{Event: "dance"}, "unknown event"},
		{"bad json", model.Envelope{Event: model.EventRequestChord, Data: json.RawMessage(`{"melody_note": 3}`)}, "bad payload"},
		{"empty audio", envelope(t, model.EventAudioData, model.AudioData{}), "bad payload"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			h, s := newHandler(t, &fakeDetector{})
			out := h.Dispatch(context.Background(), s, c.in)
			assert.Equal(t, model.EventError, out.Event)

			var res model.ErrorResponse
			assert.NoError(t, json.Unmarshal(out.Data, &res))
			assert.Contains(t, res.Error, c.want)

			// a failed request must not touch the session
			assert.Equal(t, 0, s.Snapshot().Cursor)
		})
	}
}

func TestAudioDataWaitsForEnoughSamples(t *testing.T) {
	assert := assert.New(t)
	key, _ := pitch.Parse("E")
	det := &fakeDetector{estimate: detect.Estimate{Key: key, Tempo: 120}}
	h, s := newHandler(t, det)
	ctx := context.Background()

	res, err := h.AudioData(ctx, s, model.AudioData{Samples: make([]float64, testRate)})
	assert.NoError(err)
	assert.False(res.Applied)
	assert.Equal("D", res.Key)
	assert.Equal(0, det.calls)

	res, err = h.AudioData(ctx, s, model.AudioData{Samples: make([]float64, testRate)})
	assert.NoError(err)
	assert.True(res.Applied)
	assert.Equal(model.DetectionResponse{Tempo: 120, Key: "E", Applied: true}, res)
	assert.Equal(1, det.calls)
	assert.Equal(2*testRate, det.lastLen)

	// the window caps at three seconds
	_, err = h.AudioData(ctx, s, model.AudioData{Samples: make([]float64, 5*testRate)})
	assert.NoError(err)
	assert.Equal(3*testRate, det.lastLen)
}

func TestAudioDataIgnoredAfterAnchor(t *testing.T) {
	assert := assert.New(t)
	key, _ := pitch.Parse("E")
	h, s := newHandler(t, &fakeDetector{estimate: detect.Estimate{Key: key, Tempo: 120}})
	ctx := context.Background()

	_, err := h.RequestChord(s, model.ChordRequest{MelodyNote: strPtr("D")})
	assert.NoError(err)

	res, err := h.AudioData(ctx, s, model.AudioData{Samples: make([]float64, 2*testRate)})
	assert.NoError(err)
	assert.False(res.Applied)
	assert.Equal(model.DetectionResponse{Tempo: 30, Key: "D"}, res)
}

func TestFailedDetectionLeavesKeyUnchanged(t *testing.T) {
	assert := assert.New(t)
	det := &fakeDetector{err: fmt.Errorf("%w: silence", detect.ErrDetectionFailed)}
	h, s := newHandler(t, det)

	out := h.Dispatch(context.Background(), s, envelope(t, model.EventAudioData, model.AudioData{Samples: make([]float64, 2*testRate)}))
	assert.Equal(model.EventError, out.Event)
	assert.Equal("D", s.Snapshot().Key.String())
	assert.Equal(30, s.Snapshot().Tempo)
}

func TestStartListeningClearsAudio(t *testing.T) {
	assert := assert.New(t)
	det := &fakeDetector{}
	h, s := newHandler(t, det)
	ctx := context.Background()

	_, err := h.AudioData(ctx, s, model.AudioData{Samples: make([]float64, testRate)})
	assert.NoError(err)
	h.StartListening(s)
	_, err = h.AudioData(ctx, s, model.AudioData{Samples: make([]float64, testRate)})
	assert.NoError(err)
	assert.Equal(0, det.calls)
}

func TestStartListeningDuringDetectionWins(t *testing.T) {
	assert := assert.New(t)
	key, _ := pitch.Parse("E")
	det := &fakeDetector{estimate: detect.Estimate{Key: key, Tempo: 120}}
	h, s := newHandler(t, det)
	det.during = func() { h.StartListening(s) }

	res, err := h.AudioData(context.Background(), s, model.AudioData{Samples: make([]float64, 2*testRate)})
	assert.NoError(err)
	assert.Equal(model.DetectionResponse{Tempo: 30, Key: "D"}, res)
	assert.Equal(1, det.calls)
	assert.Equal("D", s.Snapshot().Key.String())
	assert.Equal(30, s.Snapshot().Tempo)
}

func TestStatusCode(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(http.StatusNotFound, StatusCode(fmt.Errorf("x: %w", session.ErrSessionNotFound)))
	assert.Equal(http.StatusBadRequest, StatusCode(pitch.ErrUnknownPitchClass))
	assert.Equal(http.StatusBadRequest, StatusCode(chord.ErrUnknownScaleDegree))
	assert.Equal(http.StatusUnprocessableEntity, StatusCode(detect.ErrDetectionFailed))
	assert.Equal(http.StatusInternalServerError, StatusCode(errors.New("boom")))
}

func TestProgressionIn(t *testing.T) {
	key, _ := pitch.Parse("D")
	res := ProgressionIn(chord.MustParseProgression(chord.DefaultProgression), key)
	assert.Equal(t, model.ProgressionResponse{
		Key: "D",
		Chords: []model.ResolvedChord{
			{Degree: "I", Chord: "D"},
			{Degree: "V", Chord: "A"},
			{Degree: "vi", Chord: "B"},
			{Degree: "IV", Chord: "G"},
		},
	}, res)
}
