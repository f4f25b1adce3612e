package www

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"

	"node.town/shabad/metrics"
	"node.town/shabad/session"
)

type MockSessions struct {
	Infos []session.Info
}

func (m *MockSessions) Snapshot() []session.Info {
	return m.Infos
}

func newTestRouter(t *testing.T) (http.Handler, string) {
	t.Helper()

	reg := prometheus.NewRegistry()
	uploadDir := filepath.Join(t.TempDir(), "uploads")
	staticDir := t.TempDir()
	os.WriteFile(filepath.Join(staticDir, "app.js"), []byte("console.log(1)"), 0o644)

	r := NewRouter(Options{
		Sessions: &MockSessions{Infos: []session.Info{{
			ConnectionID: "conn",
			SessionID:    "sess",
			State:        "active",
			StartedAt:    time.Unix(0, 0).UTC(),
			Queued:       2,
		}}},
		StaticDir:      staticDir,
		UploadDir:      uploadDir,
		AllowedOrigins: []string{"*"},
		Metrics:        metrics.New(reg),
		Gatherer:       reg,
	}, log.New(io.Discard))

	return r, uploadDir
}

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if field != "" {
		fw, err := mw.CreateFormFile(field, filename)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(content)
	} else {
		mw.WriteField("note", "no file here")
	}
	mw.Close()
	return &body, mw.FormDataContentType()
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if got := w.Body.String(); got != "Backend is running (HTTP)!" {
		t.Errorf("body = %q", got)
	}
}

func TestUpload(t *testing.T) {
	r, uploadDir := newTestRouter(t)

	body, contentType := multipartBody(t, "audio_file", "clip.webm", []byte("webm bytes"))
	req := httptest.NewRequest(http.MethodPost, "/api/audio", body)
	req.Header.Set("Content-Type", contentType)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	filename, _ := resp["filename"].(string)
	if !strings.HasPrefix(filename, "recording_") || !strings.HasSuffix(filename, ".webm") {
		t.Errorf("filename = %q, want recording_*.webm", filename)
	}
	if resp["message"] != "Audio received and saved." {
		t.Errorf("message = %v", resp["message"])
	}
	for _, field := range []string{"transcribed_text", "found_verse"} {
		if v, ok := resp[field]; ok {
			t.Errorf("response has %s = %v, want acknowledgement only", field, v)
		}
	}

	saved, err := os.ReadFile(filepath.Join(uploadDir, filename))
	if err != nil {
		t.Fatalf("uploaded file not saved: %v", err)
	}
	if string(saved) != "webm bytes" {
		t.Errorf("saved content = %q", saved)
	}
}

func TestUploadErrors(t *testing.T) {
	tests := []struct {
		name     string
		field    string
		filename string
		want     int
	}{
		{"missing part", "", "", http.StatusBadRequest},
		{"wrong field", "other", "clip.webm", http.StatusBadRequest},
		{"empty filename", "audio_file", "", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestRouter(t)

			body, contentType := multipartBody(t, tt.field, tt.filename, []byte("x"))
			req := httptest.NewRequest(http.MethodPost, "/api/audio", body)
			req.Header.Set("Content-Type", contentType)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestUploadSaveFailure(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	os.WriteFile(blocker, nil, 0o644)

	h := &uploadHandler{dir: blocker, log: log.New(io.Discard)}

	body, contentType := multipartBody(t, "audio_file", "clip.webm", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/api/audio", body)
	req.Header.Set("Content-Type", contentType)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestSessions(t *testing.T) {
	r, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))

	var infos []session.Info
	if err := json.Unmarshal(w.Body.Bytes(), &infos); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(infos) != 1 || infos[0].ConnectionID != "conn" || infos[0].Queued != 2 {
		t.Errorf("sessions = %+v", infos)
	}
}

func TestMetricsAndStatic(t *testing.T) {
	r, _ := newTestRouter(t)

	body, contentType := multipartBody(t, "audio_file", "clip.webm", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/api/audio", body)
	req.Header.Set("Content-Type", contentType)
	r.ServeHTTP(httptest.NewRecorder(), req)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(w.Body.String(), "shabad_uploads_received_total 1") {
		t.Errorf("metrics missing upload counter:\n%s", w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/static/app.js", nil))
	if w.Code != http.StatusOK || w.Body.String() != "console.log(1)" {
		t.Errorf("static = %d %q", w.Code, w.Body.String())
	}
}
