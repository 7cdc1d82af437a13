package api

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"distritree/pkg/config"
	"distritree/pkg/core"
	"distritree/pkg/model"
	"distritree/pkg/storage"
)

func newTestServer(t *testing.T) (*Server, *core.TreeIndex) {
	t.Helper()
	archive, err := storage.NewSQLiteArchive("")
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	idx, err := core.NewTreeIndex(config.Default(), archive, nil)
	if err != nil {
		t.Fatalf("new index: %v", err)
	}
	s := NewServer(idx, nil)
	go s.Hub().Run()
	t.Cleanup(func() {
		s.Hub().Stop()
		idx.Close()
	})
	return s, idx
}

func do(t *testing.T, h http.Handler, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			if err := json.NewEncoder(&buf).Encode(b); err != nil {
				t.Fatalf("encode body: %v", err)
			}
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func insert(t *testing.T, h http.Handler, key int, value string) map[string]interface{} {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/insert", map[string]interface{}{"key": key, "value": value})
	if rec.Code != http.StatusOK {
		t.Fatalf("insert %d: expected 200, got %d (%s)", key, rec.Code, rec.Body.String())
	}
	var resp map[string]interface{}
	decode(t, rec, &resp)
	return resp
}

func TestInsertAndSearchScenario(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Routes()

	first := insert(t, h, 10, "ten")
	if first["status"] != "success" {
		t.Fatalf("unexpected status: %v", first["status"])
	}
	loc := first["location"].(map[string]interface{})
	if loc["node_id"] != "node_1" {
		t.Fatalf("expected node_1, got %v", loc["node_id"])
	}
	if loc["record_id"] == "" {
		t.Fatal("expected a record id")
	}

	var afterSplit map[string]interface{}
	for _, k := range []int{20, 5, 6} {
		afterSplit = insert(t, h, k, fmt.Sprintf("v%d", k))
	}
	tree := afterSplit["tree_structure"].(map[string]interface{})
	if tree["type"] != "Internal" {
		t.Fatalf("expected Internal root after split, got %v", tree["type"])
	}
	if kids := tree["children"].([]interface{}); len(kids) != 2 {
		t.Fatalf("expected 2 children, got %d", len(kids))
	}

	for _, k := range []int{12, 30, 7, 17} {
		insert(t, h, k, fmt.Sprintf("v%d", k))
	}

	cases := []struct {
		target string
		found  bool
		cost   int
		method string
	}{
		{"/search?key=6&optimized=true", true, 2, core.MethodIndexed},
		{"/search?key=6", true, 2, core.MethodIndexed},
		{"/search?key=6&optimized=false", true, 1, core.MethodScan},
		{"/search?key=999&optimized=true", false, 2, core.MethodIndexed},
		{"/search?key=999&optimized=false", false, 3, core.MethodScan},
	}
	for _, c := range cases {
		rec := do(t, h, http.MethodGet, c.target, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", c.target, rec.Code)
		}
		var resp model.SearchResponse
		decode(t, rec, &resp)
		if resp.Found != c.found || resp.IOCost != c.cost || resp.Method != c.method {
			t.Fatalf("%s: got found=%v io=%d method=%q", c.target, resp.Found, resp.IOCost, resp.Method)
		}
		if len(resp.PathTaken) != c.cost || len(resp.VisitedNodes) != c.cost {
			t.Fatalf("%s: path length %d, want %d", c.target, len(resp.PathTaken), c.cost)
		}
		if c.found && (resp.Result == nil || resp.Result.Value != "v6") {
			t.Fatalf("%s: unexpected result %+v", c.target, resp.Result)
		}
		if !c.found && resp.Result != nil {
			t.Fatalf("%s: expected null result", c.target)
		}
	}

	rec := do(t, h, http.MethodGet, "/search?key=999&optimized=true", nil)
	if !strings.Contains(rec.Body.String(), `"result":null`) {
		t.Fatalf("missing null result: %s", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"path_taken":["node_3","node_4"]`) {
		t.Fatalf("unexpected path: %s", rec.Body.String())
	}
}

func TestSearchOnEmptyTree(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s.Routes(), http.MethodGet, "/search?key=1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp model.SearchResponse
	decode(t, rec, &resp)
	if resp.Found || resp.IOCost != 0 || resp.PathTaken == nil || len(resp.PathTaken) != 0 {
		t.Fatalf("unexpected empty-tree response: %+v", resp)
	}
}

func TestBadRequestsAreRejected(t *testing.T) {
	s, idx := newTestServer(t)
	h := s.Routes()

	cases := []struct {
		method string
		target string
		body   interface{}
		code   int
	}{
		{http.MethodPost, "/insert", "not json", http.StatusBadRequest},
		{http.MethodPost, "/insert", map[string]interface{}{"value": "x"}, http.StatusBadRequest},
		{http.MethodPost, "/insert", map[string]interface{}{"key": 1}, http.StatusBadRequest},
		{http.MethodPost, "/insert", map[string]interface{}{"key": 1, "value": ""}, http.StatusBadRequest},
		{http.MethodPost, "/insert", map[string]interface{}{"key": "abc", "value": "x"}, http.StatusBadRequest},
		{http.MethodPost, "/insert", map[string]interface{}{"key": 1.5, "value": "x"}, http.StatusBadRequest},
		{http.MethodGet, "/insert", nil, http.StatusMethodNotAllowed},
		{http.MethodGet, "/search", nil, http.StatusBadRequest},
		{http.MethodGet, "/search?key=abc", nil, http.StatusBadRequest},
		{http.MethodGet, "/search?key=1&optimized=maybe", nil, http.StatusBadRequest},
		{http.MethodGet, "/range?start=1", nil, http.StatusBadRequest},
		{http.MethodGet, "/range?start=9&end=3", nil, http.StatusBadRequest},
		{http.MethodGet, "/clear", nil, http.StatusMethodNotAllowed},
		{http.MethodPost, "/api/stats", nil, http.StatusMethodNotAllowed},
		{http.MethodDelete, "/api/export", nil, http.StatusMethodNotAllowed},
	}
	for _, c := range cases {
		rec := do(t, h, c.method, c.target, c.body)
		if rec.Code != c.code {
			t.Fatalf("%s %s %v: expected %d, got %d (%s)", c.method, c.target, c.body, c.code, rec.Code, rec.Body.String())
		}
		var resp model.ErrorResponse
		decode(t, rec, &resp)
		if resp.Error == "" {
			t.Fatalf("%s %s: missing error message", c.method, c.target)
		}
	}

	snap, err := idx.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !snap.IsEmpty() {
		t.Fatal("rejected requests must not reach the engine")
	}
}

func TestZeroKeyIsAccepted(t *testing.T) {
	s, _ := newTestServer(t)
	resp := insert(t, s.Routes(), 0, "zero")
	if resp["status"] != "success" {
		t.Fatalf("unexpected response %v", resp)
	}
}

func TestRangeBothPaths(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Routes()
	for _, k := range []int{10, 20, 5, 6, 12, 30, 7, 17} {
		insert(t, h, k, fmt.Sprintf("v%d", k))
	}

	for _, optimized := range []string{"true", "false"} {
		rec := do(t, h, http.MethodGet, "/range?start=6&end=12&optimized="+optimized, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var resp model.RangeResponse
		decode(t, rec, &resp)
		got := fmt.Sprint(resp.Results)
		if got != "[6 7 10 12]" {
			t.Fatalf("optimized=%s: got %s", optimized, got)
		}
		if resp.IOCost != len(resp.PathTaken) {
			t.Fatalf("io cost %d does not match path %v", resp.IOCost, resp.PathTaken)
		}
	}
}

func TestTreeAndClear(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Routes()

	rec := do(t, h, http.MethodGet, "/tree", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"type":"Empty","keys":[]}` {
		t.Fatalf("unexpected empty tree: %s", got)
	}

	insert(t, h, 1, "one")
	rec = do(t, h, http.MethodGet, "/tree", nil)
	if !strings.Contains(rec.Body.String(), `"type":"Leaf"`) {
		t.Fatalf("expected leaf root: %s", rec.Body.String())
	}

	rec = do(t, h, http.MethodPost, "/clear", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("clear: expected 200, got %d", rec.Code)
	}
	var cleared model.ClearResponse
	decode(t, rec, &cleared)
	if cleared.Status != "success" {
		t.Fatalf("unexpected clear response %+v", cleared)
	}

	rec = do(t, h, http.MethodGet, "/tree", nil)
	if !strings.Contains(rec.Body.String(), `"type":"Empty"`) {
		t.Fatalf("expected empty tree after clear: %s", rec.Body.String())
	}
}

func TestStatsAndExport(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Routes()
	for _, k := range []int{3, 1, 2, 1} {
		insert(t, h, k, fmt.Sprintf("v%d", k))
	}

	rec := do(t, h, http.MethodGet, "/api/stats", nil)
	var stats map[string]interface{}
	decode(t, rec, &stats)
	if stats["keys"].(float64) != 3 || stats["inserts"].(float64) != 4 || stats["overwrites"].(float64) != 1 {
		t.Fatalf("unexpected stats %v", stats)
	}

	rec = do(t, h, http.MethodGet, "/api/export", nil)
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("unexpected content type %q", ct)
	}
	rows, err := csv.NewReader(rec.Body).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("expected header + 4 rows, got %d", len(rows))
	}
	if rows[0][0] != "record_id" || rows[0][4] != "shard" || rows[4][1] != "1" || rows[4][2] != "v1" || rows[4][3] != "node_1" || rows[4][4] != "0" {
		t.Fatalf("unexpected rows %v", rows)
	}
}

func TestCORSHeaders(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s.Routes(), http.MethodOptions, "/insert", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("missing CORS header")
	}
}

func TestWebsocketReceivesInsertEvents(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for s.Hub().Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	insert(t, s.Routes(), 42, "answer")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev core.Event
	if err := json.Unmarshal(msg, &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.Kind != "insert" || ev.Key == nil || *ev.Key != 42 || ev.Tree == nil || ev.Tree.Type != "Leaf" {
		t.Fatalf("unexpected event %+v", ev)
	}
}
