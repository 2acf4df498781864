package model

type ChordRequest struct {
	MelodyNote *string `json:"melody_note,omitempty"`
	MelodyMidi *uint8  `json:"melody_midi,omitempty"`
}

type ChordResponse struct {
	Chord  string `json:"chord"`
	Key    string `json:"key"`
	Degree string `json:"degree"`
	Tempo  int    `json:"tempo"`
}

type ResolvedChord struct {
	Degree string `json:"degree"`
	Chord  string `json:"chord"`
}

type ProgressionResponse struct {
	Key    string          `json:"key"`
	Chords []ResolvedChord `json:"chords"`
}
