// Package event turns client events into session operations. It is shared
// by the websocket and REST transports.
package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/jsphweid/accompanist/chord"
	"github.com/jsphweid/accompanist/constants"
	"github.com/jsphweid/accompanist/detect"
	"github.com/jsphweid/accompanist/logging"
	"github.com/jsphweid/accompanist/model"
	"github.com/jsphweid/accompanist/pitch"
	"github.com/jsphweid/accompanist/session"
)

var (
	ErrUnknownEvent = errors.New("unknown event")
	ErrBadPayload   = errors.New("bad payload")
)

type Options struct {
	Detector      detect.Detector
	SampleRate    int
	WindowSeconds int
	Logger        hclog.Logger
}

type audioWindow struct {
	window     *detect.Window
	sampleRate int
}

type Handler struct {
	store         *session.Store
	detector      detect.Detector
	sampleRate    int
	windowSeconds int
	logger        hclog.Logger

	mu      sync.Mutex
	windows map[string]*audioWindow
}

func NewHandler(store *session.Store, opts Options) *Handler {
	logger := logging.OrNull(opts.Logger).Named("event")
	if opts.Detector == nil {
		opts.Detector = detect.NewChromaDetector(logger)
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = constants.DefaultSampleRate
	}
	if opts.WindowSeconds < constants.MinDetectSeconds {
		opts.WindowSeconds = constants.DefaultDetectWindowSeconds
	}
	return &Handler{
		store:         store,
		detector:      opts.Detector,
		sampleRate:    opts.SampleRate,
		windowSeconds: opts.WindowSeconds,
		logger:        logger,
		windows:       make(map[string]*audioWindow),
	}
}

func (h *Handler) Store() *session.Store {
	return h.store
}

// StartListening resets the session to the configured key and tempo.
func (h *Handler) StartListening(s *session.Session) model.KeyTempo {
	h.Forget(s.ID())
	d := h.store.Defaults()
	report := s.Reset(d.Key, d.Tempo)
	h.logger.Info("started listening", "session", s.ID(), "key", report.Key, "tempo", report.Tempo)
	return model.KeyTempo{Tempo: report.Tempo, Key: report.Key.String()}
}

// AudioData feeds samples into the session's rolling window and applies a
// fresh estimate once enough audio has arrived. A failed estimate leaves
// key and tempo untouched.
func (h *Handler) AudioData(ctx context.Context, s *session.Session, data model.AudioData) (model.DetectionResponse, error) {
	if len(data.Samples) == 0 {
		return model.DetectionResponse{}, fmt.Errorf("%w: no samples", ErrBadPayload)
	}
	rate := data.SampleRate
	if rate <= 0 {
		rate = h.sampleRate
	}

	gen := s.Generation()
	w := h.window(s.ID(), rate)
	held := w.Push(data.Samples)
	if held < constants.MinDetectSeconds*rate {
		snap := s.Snapshot()
		return model.DetectionResponse{Tempo: snap.Tempo, Key: snap.Key.String()}, nil
	}

	est, err := h.detector.Detect(ctx, w.Snapshot(), rate)
	if err != nil {
		h.logger.Warn("detection failed", "session", s.ID(), "error", err)
		return model.DetectionResponse{}, err
	}

	report, applied := s.UpdateDetectionSince(gen, est.Key, est.Tempo)
	return model.DetectionResponse{Tempo: report.Tempo, Key: report.Key.String(), Applied: applied}, nil
}

func (h *Handler) RequestChord(s *session.Session, req model.ChordRequest) (model.ChordResponse, error) {
	melody, err := melodyOf(req)
	if err != nil {
		return model.ChordResponse{}, err
	}

	c, err := s.RequestChord(melody)
	if err != nil {
		return model.ChordResponse{}, err
	}
	h.logger.Debug("sending chord", "session", s.ID(), "chord", c.Chord, "degree", c.Degree)
	return model.ChordResponse{
		Chord:  c.Chord.String(),
		Key:    c.Key.String(),
		Degree: c.Degree.String(),
		Tempo:  c.Tempo,
	}, nil
}

func melodyOf(req model.ChordRequest) (*pitch.Class, error) {
	if req.MelodyNote != nil {
		m, err := pitch.Parse(*req.MelodyNote)
		if err != nil {
			return nil, err
		}
		return &m, nil
	}
	if req.MelodyMidi != nil {
		if *req.MelodyMidi > 127 {
			return nil, fmt.Errorf("%w: midi note %v out of range", ErrBadPayload, *req.MelodyMidi)
		}
		m := pitch.FromMidi(*req.MelodyMidi)
		return &m, nil
	}
	return nil, nil
}

// Dispatch handles one inbound envelope and always returns the envelope to
// send back, which is an error envelope when the event failed.
func (h *Handler) Dispatch(ctx context.Context, s *session.Session, in model.Envelope) model.Envelope {
	out, err := h.dispatch(ctx, s, in)
	if err != nil {
		h.logger.Warn("event failed", "session", s.ID(), "event", in.Event, "error", err)
		return ErrorEnvelope(err)
	}
	return out
}

func (h *Handler) dispatch(ctx context.Context, s *session.Session, in model.Envelope) (model.Envelope, error) {
	switch in.Event {
	case model.EventStartListening:
		return model.NewEnvelope(model.EventListeningStarted, h.StartListening(s))
	case model.EventAudioData:
		var data model.AudioData
		if err := decode(in.Data, &data); err != nil {
			return model.Envelope{}, err
		}
		res, err := h.AudioData(ctx, s, data)
		if err != nil {
			return model.Envelope{}, err
		}
		return model.NewEnvelope(model.EventDetection, res)
	case model.EventRequestChord:
		var req model.ChordRequest
		if err := decode(in.Data, &req); err != nil {
			return model.Envelope{}, err
		}
		res, err := h.RequestChord(s, req)
		if err != nil {
			return model.Envelope{}, err
		}
		return model.NewEnvelope(model.EventChord, res)
	}
	return model.Envelope{}, fmt.Errorf("%w: %q", ErrUnknownEvent, in.Event)
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return nil
}

// Forget drops the audio buffered for a session.
func (h *Handler) Forget(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.windows, id)
}

func (h *Handler) window(id string, rate int) *detect.Window {
	h.mu.Lock()
	defer h.mu.Unlock()

	aw, ok := h.windows[id]
	if !ok || aw.sampleRate != rate {
		aw = &audioWindow{window: detect.NewWindow(h.windowSeconds * rate), sampleRate: rate}
		h.windows[id] = aw
	}
	return aw.window
}

func ErrorEnvelope(err error) model.Envelope {
	env, _ := model.NewEnvelope(model.EventError, model.ErrorResponse{Error: err.Error()})
	return env
}

// StatusCode maps an event error onto an HTTP status.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, pitch.ErrUnknownPitchClass),
		errors.Is(err, chord.ErrUnknownScaleDegree),
		errors.Is(err, ErrBadPayload),
		errors.Is(err, ErrUnknownEvent):
		return http.StatusBadRequest
	case errors.Is(err, detect.ErrDetectionFailed):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func ProgressionIn(p chord.Progression, key pitch.Class) model.ProgressionResponse {
	res := model.ProgressionResponse{Key: key.String()}
	for _, step := range p.Resolve(key) {
		res.Chords = append(res.Chords, model.ResolvedChord{Degree: step.Degree.String(), Chord: step.Root.String()})
	}
	return res
}

func Overview(snap session.Snapshot) model.SessionOverview {
	progression := make([]string, len(snap.Progression))
	for i, d := range snap.Progression {
		progression[i] = d.String()
	}
	return model.SessionOverview{
		ID:          snap.ID,
		Key:         snap.Key.String(),
		Tempo:       snap.Tempo,
		Cursor:      snap.Cursor,
		State:       snap.State.String(),
		Progression: progression,
		UpdatedAt:   snap.UpdatedAt,
	}
}
