// Package speedtest runs bandwidth measurements and the surrounding
// pause/resume orchestration across all of a user's qBittorrent instances.
package speedtest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/rs/zerolog"
)

// DefaultCommand invokes the Ookla speedtest CLI with JSON output.
var DefaultCommand = []string{"speedtest", "--accept-license", "--accept-gdpr", "-f", "json"}

// Result holds the measured figures. Download and Upload are bits per
// second; Ping is milliseconds.
type Result struct {
	Download  float64    `json:"download"`
	Upload    float64    `json:"upload"`
	Ping      float64    `json:"ping"`
	Server    ServerInfo `json:"server"`
	Timestamp string     `json:"timestamp"`
}

// ServerInfo identifies the measurement server.
type ServerInfo struct {
	Name    string `json:"name"`
	Country string `json:"country"`
}

// ookla mirrors the CLI's JSON output. Bandwidth figures arrive as bytes
// per second.
type ookla struct {
	Download struct {
		Bandwidth float64 `json:"bandwidth"`
	} `json:"download"`
	Upload struct {
		Bandwidth float64 `json:"bandwidth"`
	} `json:"upload"`
	Ping struct {
		Latency float64 `json:"latency"`
	} `json:"ping"`
	Server struct {
		Name    string `json:"name"`
		Country string `json:"country"`
	} `json:"server"`
	Timestamp string `json:"timestamp"`
}

// Runner executes the external measurement process.
type Runner struct {
	command []string
	logger  zerolog.Logger
}

// NewRunner creates a runner. An empty command falls back to DefaultCommand.
func NewRunner(command []string, logger zerolog.Logger) *Runner {
	if len(command) == 0 {
		command = DefaultCommand
	}
	return &Runner{
		command: command,
		logger:  logger.With().Str("component", "speedtest").Logger(),
	}
}

// Run invokes the measurement process once and parses its output.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	cmd := exec.CommandContext(ctx, r.command[0], r.command[1:]...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		r.logger.Error().Err(err).Str("stderr", stderr.String()).Msg("Speedtest process failed")
		return nil, fmt.Errorf("speedtest failed: %w (%s)", err, bytes.TrimSpace(stderr.Bytes()))
	}

	var raw ookla
	if err := json.Unmarshal(stdout.Bytes(), &raw); err != nil {
		return nil, fmt.Errorf("parse speedtest output: %w", err)
	}

	result := &Result{
		Download: raw.Download.Bandwidth * 8,
		Upload:   raw.Upload.Bandwidth * 8,
		Ping:     raw.Ping.Latency,
		Server: ServerInfo{
			Name:    raw.Server.Name,
			Country: raw.Server.Country,
		},
		Timestamp: raw.Timestamp,
	}

	r.logger.Info().
		Float64("download_mbps", result.Download/1_000_000).
		Float64("upload_mbps", result.Upload/1_000_000).
		Float64("ping_ms", result.Ping).
		Msg("Speedtest complete")

	return result, nil
}
