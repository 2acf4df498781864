package model

import "encoding/json"

// inbound
const (
	EventStartListening = "start_listening"
	EventAudioData      = "audio_data"
	EventRequestChord   = "request_chord"
)

// outbound
const (
	EventListeningStarted = "listening_started"
	EventDetection        = "detection"
	EventChord            = "chord"
	EventError            = "error"
)

type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func NewEnvelope(event string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: raw}, nil
}

type KeyTempo struct {
	Tempo int    `json:"tempo"`
	Key   string `json:"key"`
}

type AudioData struct {
	Samples    []float64 `json:"samples"`
	SampleRate int       `json:"sample_rate,omitempty"`
}

type DetectionResponse struct {
	Tempo int    `json:"tempo"`
	Key   string `json:"key"`
	// false while the window is filling or after the session anchored
	Applied bool `json:"applied"`
}

// EventSession is sent first on a websocket that created its own session.
const EventSession = "session"
