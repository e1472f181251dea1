package speedtest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s0up4200/qbitweb/qbittorrent"
)

type staticSource struct {
	instances []qbittorrent.Instance
}

func (s *staticSource) QbtInstances(ctx context.Context, userID int64) ([]qbittorrent.Instance, error) {
	return s.instances, nil
}

type stubMeasurer struct {
	result *Result
	err    error
	calls  int
}

func (m *stubMeasurer) Run(ctx context.Context) (*Result, error) {
	m.calls++
	return m.result, m.err
}

// fakeQbt simulates one skip-auth qBittorrent instance whose torrents
// transition to stopped once a stop command arrives.
type fakeQbt struct {
	mu       sync.Mutex
	torrents map[string]qbittorrent.Torrent
	stopped  [][]string
	started  [][]string
	// sticky keeps torrent states frozen after a stop command, simulating
	// an instance that acknowledges the stop but never pauses.
	sticky bool
	server *httptest.Server
}

func newFakeQbt(t *testing.T, torrents ...qbittorrent.Torrent) *fakeQbt {
	t.Helper()
	f := &fakeQbt{torrents: make(map[string]qbittorrent.Torrent)}
	for _, tr := range torrents {
		f.torrents[tr.Hash] = tr
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/torrents/info", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		list := make([]qbittorrent.Torrent, 0, len(f.torrents))
		for _, tr := range f.torrents {
			list = append(list, tr)
		}
		json.NewEncoder(w).Encode(list)
	})
	mux.HandleFunc("/api/v2/torrents/stop", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		hashes := strings.Split(r.PostForm.Get("hashes"), "|")
		f.mu.Lock()
		defer f.mu.Unlock()
		f.stopped = append(f.stopped, hashes)
		if f.sticky {
			return
		}
		for _, h := range hashes {
			if tr, ok := f.torrents[h]; ok {
				tr.State = "stoppedDL"
				f.torrents[h] = tr
			}
		}
	})
	mux.HandleFunc("/api/v2/torrents/start", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		f.mu.Lock()
		defer f.mu.Unlock()
		f.started = append(f.started, strings.Split(r.PostForm.Get("hashes"), "|"))
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeQbt) instance(id int64) qbittorrent.Instance {
	return qbittorrent.Instance{ID: id, Label: "fake", URL: f.server.URL, SkipAuth: true}
}

func (f *fakeQbt) startCalls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

func (f *fakeQbt) stopCalls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

func newTestService(source InstanceSource, m Measurer) *Service {
	httpClient := qbittorrent.NewHTTPClient(5*time.Second, false)
	auth := qbittorrent.NewAuth(nil, httpClient, zerolog.Nop())
	client := qbittorrent.NewClient(httpClient, zerolog.Nop())
	return NewService(source, auth, client, m, 10*time.Millisecond, 500*time.Millisecond, zerolog.Nop())
}

func TestRunPausesMeasuresAndResumes(t *testing.T) {
	f := newFakeQbt(t,
		qbittorrent.Torrent{Hash: "aaa", State: "downloading"},
		qbittorrent.Torrent{Hash: "bbb", State: "uploading"},
		qbittorrent.Torrent{Hash: "ccc", State: "stoppedUP"},
	)

	measurer := &stubMeasurer{result: &Result{Download: 500_000_000}}
	svc := newTestService(&staticSource{instances: []qbittorrent.Instance{f.instance(1)}}, measurer)

	result, err := svc.Run(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 500_000_000.0, result.Download)
	assert.Equal(t, 1, measurer.calls)

	// Only the two active torrents were stopped, and exactly those resumed.
	require.Len(t, f.stopCalls(), 1)
	assert.ElementsMatch(t, []string{"aaa", "bbb"}, f.stopCalls()[0])
	require.Len(t, f.startCalls(), 1)
	assert.ElementsMatch(t, []string{"aaa", "bbb"}, f.startCalls()[0])
}

func TestRunResumesEvenWhenMeasurementFails(t *testing.T) {
	f := newFakeQbt(t,
		qbittorrent.Torrent{Hash: "aaa", State: "downloading"},
	)

	measurer := &stubMeasurer{err: errors.New("speedtest exploded")}
	svc := newTestService(&staticSource{instances: []qbittorrent.Instance{f.instance(1)}}, measurer)

	_, err := svc.Run(context.Background(), 1)
	require.Error(t, err)

	require.Len(t, f.startCalls(), 1, "resume must run on measurement failure")
	assert.ElementsMatch(t, []string{"aaa"}, f.startCalls()[0])
}

func TestRunSkipsUnreachableInstance(t *testing.T) {
	reachable := newFakeQbt(t,
		qbittorrent.Torrent{Hash: "aaa", State: "downloading"},
	)
	other := newFakeQbt(t,
		qbittorrent.Torrent{Hash: "zzz", State: "queuedDL"},
	)

	instances := []qbittorrent.Instance{
		reachable.instance(1),
		{ID: 2, Label: "offline", URL: "http://127.0.0.1:1", SkipAuth: true},
		other.instance(3),
	}

	measurer := &stubMeasurer{result: &Result{}}
	svc := newTestService(&staticSource{instances: instances}, measurer)

	_, err := svc.Run(context.Background(), 1)
	require.NoError(t, err, "an unreachable instance must not fail the run")

	assert.Equal(t, 1, measurer.calls)
	require.Len(t, reachable.startCalls(), 1)
	require.Len(t, other.startCalls(), 1)
}

func TestRunProceedsAtWaitCeiling(t *testing.T) {
	f := newFakeQbt(t,
		qbittorrent.Torrent{Hash: "aaa", State: "downloading"},
	)
	f.sticky = true

	measurer := &stubMeasurer{result: &Result{Download: 1}}
	svc := newTestService(&staticSource{instances: []qbittorrent.Instance{f.instance(1)}}, measurer)

	start := time.Now()
	result, err := svc.Run(context.Background(), 1)
	require.NoError(t, err, "torrents that never pause must not fail the run")
	assert.Equal(t, 1.0, result.Download)

	// The poll loop ran its full ceiling before giving up.
	assert.GreaterOrEqual(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, 1, measurer.calls)

	require.Len(t, f.stopCalls(), 1)
	require.Len(t, f.startCalls(), 1, "resume must still run after the wait ceiling")
	assert.ElementsMatch(t, []string{"aaa"}, f.startCalls()[0])
}

func TestRunNoActiveTorrents(t *testing.T) {
	f := newFakeQbt(t,
		qbittorrent.Torrent{Hash: "aaa", State: "stoppedUP"},
	)

	measurer := &stubMeasurer{result: &Result{}}
	svc := newTestService(&staticSource{instances: []qbittorrent.Instance{f.instance(1)}}, measurer)

	_, err := svc.Run(context.Background(), 1)
	require.NoError(t, err)

	assert.Empty(t, f.stopCalls())
	assert.Empty(t, f.startCalls())
	assert.Equal(t, 1, measurer.calls)
}
