package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/reviewlens/reviewlens/internal/config"
	"github.com/reviewlens/reviewlens/internal/model"
)

const testDiff = `diff --git a/main.go b/main.go
index abc1234..def5678 100644
--- a/main.go
+++ b/main.go
@@ -1,5 +1,6 @@
 package main

 func main() {
-	println("hello")
+	println("hello world")
+	resp, err := http.Get(url)
 }
diff --git a/util.go b/util.go
new file mode 100644
--- /dev/null
+++ b/util.go
@@ -0,0 +1,5 @@
+package main
+
+func add(a, b int) int {
+	return a + b
+}
`

func newTestServer() *Server {
	return New(":0", Options{Config: config.Default(), Version: "test"})
}

func post(t *testing.T, srv *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json decode: %v", err)
	}
	if resp["status"] != "ok" || resp["version"] != "test" {
		t.Errorf("unexpected health response %v", resp)
	}
}

func TestRulesEndpoint(t *testing.T) {
	cfg := config.Default()
	off := false
	cfg.Rules["outbound-io"] = config.RuleConfig{Enabled: &off}
	srv := New(":0", Options{Config: cfg})

	req := httptest.NewRequest(http.MethodGet, "/api/rules", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	var rules []ruleJSON
	if err := json.Unmarshal(w.Body.Bytes(), &rules); err != nil {
		t.Fatalf("json decode: %v", err)
	}
	if len(rules) != 4 {
		t.Fatalf("expected 4 rules, got %d", len(rules))
	}
	for _, r := range rules {
		if r.Enabled != (r.ID != "outbound-io") {
			t.Errorf("rule %s enabled = %v", r.ID, r.Enabled)
		}
	}
}

func TestReviewEndpoint(t *testing.T) {
	w := post(t, newTestServer(), "/api/review", reviewRequest{Diff: testDiff})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp reviewResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json decode: %v", err)
	}
	if resp.Report == nil || resp.Report.Metadata.FilesReviewed != 2 {
		t.Fatalf("unexpected report %+v", resp.Report)
	}
	if len(resp.Report.Findings) != 1 || resp.Report.Findings[0].RuleID != "outbound-io" {
		t.Errorf("findings = %+v", resp.Report.Findings)
	}
	if !resp.Passed || resp.Outcome != 0 {
		t.Errorf("a medium finding should pass the default high gate: %+v", resp)
	}

	w = post(t, newTestServer(), "/api/review", reviewRequest{Diff: testDiff, FailOn: "medium"})
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json decode: %v", err)
	}
	if resp.Passed || resp.Outcome != 1 {
		t.Errorf("fail_on medium: %+v", resp)
	}
}

func TestReviewUsesRequestFiles(t *testing.T) {
	// The directive sits above the hunk, so only the supplied file shows it.
	d := "diff --git a/svc.go b/svc.go\n--- a/svc.go\n+++ b/svc.go\n" +
		"@@ -4,2 +4,3 @@\n+\tresp, err := http.Get(u)\n \t_ = resp\n \t_ = err\n"
	files := map[string]string{
		"svc.go": "package svc\n\n// reviewlens:ignore outbound-io vendored client\n" +
			"\tresp, err := http.Get(u)\n\t_ = resp\n\t_ = err\n",
	}

	var resp reviewResponse
	w := post(t, newTestServer(), "/api/review", reviewRequest{Diff: d})
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json decode: %v", err)
	}
	if len(resp.Report.Findings) != 1 {
		t.Fatalf("without files: findings = %+v", resp.Report.Findings)
	}

	resp = reviewResponse{}
	w = post(t, newTestServer(), "/api/review", reviewRequest{Diff: d, Files: files})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json decode: %v", err)
	}
	if len(resp.Report.Findings) != 0 {
		t.Errorf("findings = %+v", resp.Report.Findings)
	}
	sup := resp.Report.Metadata.Suppressions
	if len(sup) != 1 || sup[0].RuleID != "outbound-io" || sup[0].Reason != "vendored client" {
		t.Errorf("suppressions = %+v", sup)
	}
}

func TestReviewBadRequests(t *testing.T) {
	tests := map[string]reviewRequest{
		"empty diff":     {},
		"bad fail_on":    {Diff: testDiff, FailOn: "severe"},
		"malformed diff": {Diff: "diff --git a/a.go b/a.go\n--- a/a.go\n+++ b/a.go\n@@ -1,5 +1,5 @@\n package a\n"},
	}
	for name, req := range tests {
		t.Run(name, func(t *testing.T) {
			if w := post(t, newTestServer(), "/api/review", req); w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestReviewInvalidJSON(t *testing.T) {
	srv := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/api/review", strings.NewReader("{bad json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestParseEndpoint(t *testing.T) {
	w := post(t, newTestServer(), "/api/parse", parseRequest{Diff: testDiff})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp parseResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json decode: %v", err)
	}
	if len(resp.Files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(resp.Files))
	}
	if resp.Files[0].Path != "main.go" || resp.Files[0].Kind != "modified" {
		t.Errorf("unexpected first file %+v", resp.Files[0])
	}
	if resp.Files[1].Kind != "added" {
		t.Errorf("expected second file to be added, got %q", resp.Files[1].Kind)
	}
	if resp.Stats.Added != 7 {
		t.Errorf("expected 7 added lines, got %d", resp.Stats.Added)
	}
}

func dial(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("ws dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocketReviewSession(t *testing.T) {
	conn := dial(t, newTestServer())

	data, _ := json.Marshal(reviewRequest{Diff: testDiff})
	if err := conn.WriteJSON(wsMessage{Type: wsMsgReview, Data: data}); err != nil {
		t.Fatalf("ws write: %v", err)
	}

	var types []string
	var parsed parseResponse
	var finding model.Finding
	var final wsReportResponse
	for len(types) < 3 {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ws read: %v", err)
		}
		types = append(types, msg.Type)
		var err error
		switch msg.Type {
		case wsMsgParsed:
			err = json.Unmarshal(msg.Data, &parsed)
		case wsMsgFinding:
			err = json.Unmarshal(msg.Data, &finding)
		case wsMsgReport:
			err = json.Unmarshal(msg.Data, &final)
		default:
			t.Fatalf("unexpected message %s: %s", msg.Type, msg.Data)
		}
		if err != nil {
			t.Fatalf("unmarshal %s: %v", msg.Type, err)
		}
	}

	want := []string{wsMsgParsed, wsMsgFinding, wsMsgReport}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("message order = %v, want %v", types, want)
		}
	}
	if len(parsed.Files) != 2 {
		t.Errorf("expected 2 files, got %d", len(parsed.Files))
	}
	if finding.RuleID != "outbound-io" || finding.File != "main.go" {
		t.Errorf("finding = %+v", finding)
	}
	if final.Report == nil || len(final.Report.Findings) != 1 || !final.Passed {
		t.Errorf("final = %+v", final)
	}
}

func TestWebSocketErrors(t *testing.T) {
	conn := dial(t, newTestServer())

	for _, msg := range []wsMessage{
		{Type: "approve"},
		{Type: wsMsgReview, Data: json.RawMessage(`{"diff":""}`)},
	} {
		if err := conn.WriteJSON(msg); err != nil {
			t.Fatalf("ws write: %v", err)
		}
		var resp wsMessage
		if err := conn.ReadJSON(&resp); err != nil {
			t.Fatalf("ws read: %v", err)
		}
		if resp.Type != wsMsgError {
			t.Errorf("%s: expected error, got %q", msg.Type, resp.Type)
		}
	}
}
