package model

import "time"

type ErrorResponse struct {
	Error string `json:"detail"`
}

type SessionCreated struct {
	ID string `json:"id"`
}

type SessionOverview struct {
	ID          string    `json:"id"`
	Key         string    `json:"key"`
	Tempo       int       `json:"tempo"`
	Cursor      int       `json:"cursor"`
	State       string    `json:"state"`
	Progression []string  `json:"progression"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type SessionList struct {
	Sessions []string `json:"sessions"`
}
