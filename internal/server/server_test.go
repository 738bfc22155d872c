package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/routemap/internal/model"
	"github.com/sells-group/routemap/internal/panel"
	"github.com/sells-group/routemap/internal/render"
	"github.com/sells-group/routemap/internal/scan"
	"github.com/sells-group/routemap/internal/selection"
)

type nopScanner struct{}

func (nopScanner) Offer(context.Context, scan.Batch, bool) bool { return false }

type fixture struct {
	broker   *Broker
	scene    *render.Scene
	registry *selection.Registry
	session  *panel.Session
	server   *Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{broker: NewBroker(), scene: render.NewScene()}
	f.registry = selection.NewRegistry(f.scene, f.broker)
	f.scene.Bind(f.registry)
	f.scene.OnChange(f.broker.Invalidate)
	f.session = panel.New(context.Background(), panel.Deps{
		Registry: f.registry,
		Surface:  f.scene,
		Scanner:  nopScanner{},
		Notifier: f.broker,
	}, model.Options{Mode: model.ModeMulti})
	f.server = New(f.session, f.scene, f.broker)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

const recordsBody = `{
  "tableId": "Trips",
  "records": [
    {"id": 1, "NameDepart": "Montreal", "LatitudeDepart": 45.5, "LongitudeDepart": -73.6},
    {"id": 2, "NameDepart": "Paris", "LatitudeDepart": 48.85, "LongitudeDepart": 2.35}
  ]
}`

type viewSummary struct {
	Problem  string
	Features int
	State    panel.State
}

func decodeView(t *testing.T, body []byte) viewSummary {
	t.Helper()
	var v struct {
		Scene struct {
			Problem string `json:"problem"`
			Markers struct {
				Features []json.RawMessage `json:"features"`
			} `json:"markers"`
		} `json:"scene"`
		State panel.State `json:"state"`
	}
	require.NoError(t, json.Unmarshal(body, &v))
	return viewSummary{Problem: v.Scene.Problem, Features: len(v.Scene.Markers.Features), State: v.State}
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, f.session.ID(), body["session"])
}

func TestRecordsPush_RendersMarkers(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/host/records", recordsBody)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Len(t, f.registry.Markers(), 2)
	assert.Equal(t, "Trips", f.session.TableID())

	w = f.do(t, http.MethodGet, "/api/view", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"FeatureCollection"`)
	v := decodeView(t, w.Body.Bytes())
	assert.Equal(t, 2, v.Features)
	assert.Empty(t, v.Problem)
	assert.Equal(t, "Trips", v.State.TableID)
}

func TestRecordsPush_EmptyShowsNoData(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/api/host/records", `{"tableId":"Trips","records":[]}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, panel.ProblemNoData, f.scene.Problem())
}

func TestRecordPush_SelectsMarker(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/api/host/records", recordsBody)

	w := f.do(t, http.MethodPost, "/api/host/record",
		`{"record":{"id":2,"NameDepart":"Paris","LatitudeDepart":48.85,"LongitudeDepart":2.35}}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	id, ok := f.registry.Selected()
	require.True(t, ok)
	assert.Equal(t, model.RecordID(2), id)
}

func TestRecordPush_MissingRecord(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/api/host/record", `{"mappings":{}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInvalidBody(t *testing.T) {
	f := newFixture(t)
	for _, path := range []string{"/api/host/record", "/api/host/records", "/api/host/options"} {
		w := f.do(t, http.MethodPost, path, `{not json`)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}
}

func TestNewRecord_ClearsMarkers(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/api/host/records", recordsBody)
	require.Len(t, f.registry.Markers(), 2)

	w := f.do(t, http.MethodPost, "/api/host/new-record", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Empty(t, f.registry.Markers())
}

func TestOptionsPush_AccessAndMode(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/api/host/options",
		`{"options":{"mode":"single"},"interaction":{"accessLevel":"read table"}}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.False(t, f.session.CanWrite())
	assert.Equal(t, model.ModeSingle, f.session.Options().Mode)
}

func TestSelectMarker(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/api/host/records", recordsBody)

	w := f.do(t, http.MethodPost, "/api/markers/1/select", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"selected":1}`, w.Body.String())
	assert.True(t, f.registry.IsSelected(1))

	w = f.do(t, http.MethodPost, "/api/markers/99/select", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPost, "/api/markers/abc/select", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetMode(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPut, "/api/mode", `{"mode":"single"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.ModeSingle, f.session.Options().Mode)
	// No record yet in single mode.
	assert.Equal(t, panel.ProblemNoData, f.scene.Problem())

	w = f.do(t, http.MethodPut, "/api/mode", `{"mode":"both"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetOption(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPut, "/api/options/mapCopyright", `{"value":"Tiles by me"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Tiles by me", f.session.Options().MapCopyright)

	w = f.do(t, http.MethodPut, "/api/options/zoom", `{"value":"3"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPut, "/api/options/mode", `{"value":"sideways"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestView_InvalidZoom(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/api/view?zoom=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/api/view?zoom=4", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestColumns(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/api/columns", "")
	require.Equal(t, http.StatusOK, w.Code)

	var contract model.Contract
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &contract))
	assert.Len(t, contract.Columns, 12)
	assert.True(t, contract.AllowSelectBy)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/mode", nil)
	req.Header.Set("Origin", "https://docs.getgrist.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)

	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

// readEvents collects SSE event names until want is seen or ctx expires.
func readEvents(ctx context.Context, url string, want string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	var names []string
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if name, ok := strings.CutPrefix(scanner.Text(), "event: "); ok {
			names = append(names, name)
			if name == want {
				return names, nil
			}
		}
	}
	return names, scanner.Err()
}

func TestEvents_StreamsSnapshotReadyAndCursor(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.session.Ready(context.Background()))
	f.do(t, http.MethodPost, "/api/host/records", recordsBody)

	srv := httptest.NewServer(f.server.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type result struct {
		names []string
		err   error
	}
	done := make(chan result, 1)
	go func() {
		names, err := readEvents(ctx, srv.URL+"/api/events", EventCursor)
		done <- result{names, err}
	}()

	require.Eventually(t, func() bool { return f.broker.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Post(srv.URL+"/api/markers/2/select", "application/json", bytes.NewReader(nil))
	require.NoError(t, err)
	resp.Body.Close() //nolint:errcheck
	require.Equal(t, http.StatusOK, resp.StatusCode)

	res := <-done
	require.NoError(t, res.err)
	names := res.names
	require.NotEmpty(t, names)
	assert.Equal(t, EventView, names[0], "snapshot first")
	assert.Contains(t, names, EventReady)
	assert.Equal(t, EventCursor, names[len(names)-1])
}

func TestWatch_PublishesViewOnChange(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watched := make(chan error, 1)
	go func() { watched <- f.server.Watch(ctx) }()

	_, events, unsubscribe := f.broker.Subscribe()
	defer unsubscribe()

	f.do(t, http.MethodPost, "/api/host/records", recordsBody)

	// Views published mid-rebuild may not have every marker yet.
	timeout := time.After(2 * time.Second)
	for found := false; !found; {
		select {
		case ev := <-events:
			assert.Equal(t, EventView, ev.Name)
			found = strings.Contains(string(ev.Data), `"Montreal"`)
		case <-timeout:
			t.Fatal("no view event with markers")
		}
	}

	cancel()
	assert.NoError(t, <-watched)
}
