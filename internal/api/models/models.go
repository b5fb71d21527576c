// Package models defines the request and response bodies of the HTTP API.
package models

import (
	"time"

	"github.com/smazurov/seisnode/internal/rsam"
)

// Health models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
	Streams int    `json:"streams" example:"12" doc:"Configured streams"`
	Running int    `json:"running" example:"11" doc:"Streams with a running worker"`
	NATS    string `json:"nats" example:"connected" enum:"connected,disconnected,disabled" doc:"NATS ingest status"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"dev" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit SHA"`
	BuildDate string `json:"build_date" example:"2024-12-15 14:30" doc:"Build timestamp"`
	BuildID   string `json:"build_id" example:"a1b2c3d4" doc:"Unique build identifier"`
	GoVersion string `json:"go_version" example:"go1.24.0" doc:"Go compiler version"`
	Compiler  string `json:"compiler" example:"gc" doc:"Compiler used"`
	Platform  string `json:"platform" example:"linux/amd64" doc:"Platform"`
}

type VersionResponse struct {
	Body VersionData
}

// Stream models
type ResultData struct {
	WindowStart time.Time            `json:"window_start" doc:"Inclusive window start"`
	WindowEnd   time.Time            `json:"window_end" doc:"Exclusive window end"`
	SampleRate  float64              `json:"sampling_rate" example:"20" doc:"Sampling rate in Hz"`
	RSAM        float64              `json:"rsam" example:"153.2" doc:"Mean absolute amplitude"`
	SSAM        []rsam.BandAmplitude `json:"ssam" doc:"Mean spectral amplitude per band"`
	Samples     int                  `json:"samples" example:"12000" doc:"Samples in the window"`
}

type StreamData struct {
	StreamID     string      `json:"stream_id" example:"IU.ANMO.00.BHZ" doc:"Canonical stream identifier"`
	Network      string      `json:"network" example:"IU" doc:"Network code"`
	Station      string      `json:"station" example:"ANMO" doc:"Station code"`
	Location     string      `json:"location" example:"00" doc:"Location code, may be empty"`
	Channel      string      `json:"channel" example:"BHZ" doc:"Channel code"`
	Name         string      `json:"name,omitempty" example:"Albuquerque" doc:"Display name"`
	Configured   bool        `json:"configured" doc:"Whether the stream is in the streams file"`
	Enabled      bool        `json:"enabled" doc:"Whether the stream accepts packets"`
	Window       string      `json:"window,omitempty" example:"10m0s" doc:"RSAM window override"`
	Bands        []rsam.Band `json:"bands,omitempty" doc:"SSAM band override"`
	State        string      `json:"state" example:"running" enum:"idle,starting,running,stopping,error" doc:"Worker state"`
	StartedAt    *time.Time  `json:"started_at,omitempty" doc:"When the worker last started"`
	RestartCount int         `json:"restart_count" doc:"Worker restarts"`
	Queued       int         `json:"queued" doc:"Packets waiting in the worker inbox"`
	Dispatched   uint64      `json:"dispatched" doc:"Packets handed to the worker"`
	Dropped      uint64      `json:"dropped" doc:"Packets dropped because the inbox was full"`
	LastError    string      `json:"last_error,omitempty" doc:"Error that stopped the worker"`
	Latest       *ResultData `json:"latest,omitempty" doc:"Most recent closed window"`
}

type StreamListData struct {
	Streams []StreamData `json:"streams" doc:"Known streams ordered by identifier"`
	Count   int          `json:"count" example:"2" doc:"Number of streams"`
}

type StreamListResponse struct {
	Body StreamListData
}

type StreamResponse struct {
	Body StreamData
}

type StreamRestartData struct {
	StreamID string `json:"stream_id" example:"IU.ANMO.00.BHZ" doc:"Canonical stream identifier"`
	Message  string `json:"message" example:"Stream restarted" doc:"Result message"`
}

type StreamRestartResponse struct {
	Body StreamRestartData
}
