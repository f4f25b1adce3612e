package www

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"node.town/shabad/metrics"
)

const maxUploadSize = 64 << 20

type uploadResponse struct {
	Message  string `json:"message"`
	Filename string `json:"filename,omitempty"`
	Error    string `json:"error,omitempty"`
}

type uploadHandler struct {
	dir     string
	metrics *metrics.Metrics
	log     *log.Logger
}

// ServeHTTP stores the multipart field audio_file under the upload
// directory and acknowledges it. Uploaded files are not transcribed.
func (h *uploadHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	req.Body = http.MaxBytesReader(w, req.Body, maxUploadSize)

	file, header, err := req.FormFile("audio_file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, uploadResponse{
			Message: "No audio file part",
		}, h.log)
		return
	}
	defer file.Close()

	if header.Filename == "" {
		writeJSON(w, http.StatusBadRequest, uploadResponse{
			Message: "No selected file",
		}, h.log)
		return
	}

	filename := fmt.Sprintf(
		"recording_%d_%s.webm",
		time.Now().Unix(),
		uuid.NewString()[:8],
	)

	if err := h.save(filename, file); err != nil {
		h.log.Error("failed to save upload", "filename", filename, "error", err)
		writeJSON(w, http.StatusInternalServerError, uploadResponse{
			Message: "Error processing file",
			Error:   err.Error(),
		}, h.log)
		return
	}

	h.log.Info("saved upload", "filename", filename, "bytes", header.Size)
	if h.metrics != nil {
		h.metrics.UploadsReceived.Inc()
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		Message:  "Audio received and saved.",
		Filename: filename,
	}, h.log)
}

func (h *uploadHandler) save(filename string, src io.Reader) error {
	if err := os.MkdirAll(h.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create upload directory: %w", err)
	}

	path := filepath.Join(h.dir, filename)
	dst, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return dst.Close()
}
