// Package orphans scans qBittorrent instances for torrents whose payload is
// gone from disk or that the tracker no longer recognizes.
package orphans

import (
	"context"
	"fmt"
	"regexp"

	"github.com/rs/zerolog"

	"github.com/s0up4200/qbitweb/qbittorrent"
)

// Flag reasons reported per orphan.
const (
	ReasonMissingFiles = "missingFiles"
	ReasonUnregistered = "unregistered"
)

// unregisteredPattern matches the status messages private trackers return
// for torrents deleted on their side.
var unregisteredPattern = regexp.MustCompile(`(?i)unregistered|not registered|torrent not found`)

// InstanceSource lists the qBittorrent instances belonging to a user.
// Implemented by the relational store.
type InstanceSource interface {
	QbtInstances(ctx context.Context, userID int64) ([]qbittorrent.Instance, error)
}

// Orphan is one flagged torrent together with the instance it lives on.
type Orphan struct {
	InstanceID     int64  `json:"instanceId"`
	InstanceLabel  string `json:"instanceLabel"`
	Hash           string `json:"hash"`
	Name           string `json:"name"`
	Size           int64  `json:"size"`
	Reason         string `json:"reason"`
	TrackerMessage string `json:"trackerMessage,omitempty"`
}

// Report summarizes one scan across all of a user's instances.
type Report struct {
	Orphans       []Orphan `json:"orphans"`
	TotalTorrents int      `json:"totalTorrents"`
	TotalChecked  int      `json:"totalChecked"`
}

// Scanner walks every instance's torrent list looking for orphans.
type Scanner struct {
	instances InstanceSource
	auth      *qbittorrent.Auth
	client    *qbittorrent.Client
	logger    zerolog.Logger
}

// NewScanner wires the scan against the shared auth and client layers.
func NewScanner(instances InstanceSource, auth *qbittorrent.Auth, client *qbittorrent.Client, logger zerolog.Logger) *Scanner {
	return &Scanner{
		instances: instances,
		auth:      auth,
		client:    client,
		logger:    logger.With().Str("component", "orphan-scan").Logger(),
	}
}

// Scan logs in to each instance, flags torrents already in the missingFiles
// state, and checks every other torrent's trackers for an unregistered
// message. Instances that fail to authenticate or respond are logged and
// skipped; only a failure to list the instances fails the scan.
func (s *Scanner) Scan(ctx context.Context, userID int64) (*Report, error) {
	instances, err := s.instances.QbtInstances(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}

	s.logger.Info().Int("instances", len(instances)).Msg("Starting orphan scan")
	report := &Report{Orphans: []Orphan{}}

	for _, inst := range instances {
		login := s.auth.Login(ctx, inst)
		if !login.Success {
			s.logger.Warn().
				Int64("instance", inst.ID).
				Str("label", inst.Label).
				Str("reason", login.Reason).
				Msg("Skipping unreachable instance")
			continue
		}

		torrents, err := s.client.Torrents(ctx, inst, login.Cookie)
		if err != nil {
			s.logger.Warn().Err(err).Int64("instance", inst.ID).Msg("Failed to fetch torrent list, skipping")
			continue
		}
		report.TotalTorrents += len(torrents)

		for _, t := range torrents {
			if t.State == ReasonMissingFiles {
				s.logger.Info().Int64("instance", inst.ID).Str("name", t.Name).Msg("Missing files")
				report.Orphans = append(report.Orphans, s.orphan(inst, t, ReasonMissingFiles, ""))
				continue
			}

			report.TotalChecked++
			trackers, err := s.client.Trackers(ctx, inst, login.Cookie, t.Hash)
			if err != nil {
				continue
			}
			for _, tr := range trackers {
				if tr.Msg != "" && unregisteredPattern.MatchString(tr.Msg) {
					s.logger.Info().
						Int64("instance", inst.ID).
						Str("name", t.Name).
						Str("msg", tr.Msg).
						Msg("Unregistered at tracker")
					report.Orphans = append(report.Orphans, s.orphan(inst, t, ReasonUnregistered, tr.Msg))
					break
				}
			}
		}
	}

	s.logger.Info().
		Int("orphans", len(report.Orphans)).
		Int("torrents", report.TotalTorrents).
		Msg("Orphan scan complete")
	return report, nil
}

func (s *Scanner) orphan(inst qbittorrent.Instance, t qbittorrent.Torrent, reason, msg string) Orphan {
	return Orphan{
		InstanceID:     inst.ID,
		InstanceLabel:  inst.Label,
		Hash:           t.Hash,
		Name:           t.Name,
		Size:           t.Size,
		Reason:         reason,
		TrackerMessage: msg,
	}
}
