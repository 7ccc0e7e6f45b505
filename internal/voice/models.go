package voice

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"

	"github.com/neboloop/ytvoice/internal/defaults"
)

// ModelManifest describes a downloadable voice model.
type ModelManifest struct {
	Name   string `json:"name"`   // e.g. "silero_vad.onnx"
	URL    string `json:"url"`    // download URL
	Size   int64  `json:"size"`   // expected size in bytes
	SHA256 string `json:"sha256"` // hex-encoded checksum, optional
}

// DownloadProgress is emitted during model downloads.
type DownloadProgress struct {
	Model      string `json:"model"`
	Downloaded int64  `json:"downloaded"`
	Total      int64  `json:"total"`
	Done       bool   `json:"done"`
	Error      string `json:"error,omitempty"`
}

// sileroModelURL is the upstream Silero VAD v5 release.
var sileroModelURL = "https://github.com/snakers4/silero-vad/raw/v5.1.2/src/silero_vad/data/silero_vad.onnx"

// RequiredModels returns the models the Silero engine needs. ONNX Runtime
// itself is a system library (see YTVOICE_ONNXRUNTIME_LIB).
func RequiredModels() []ModelManifest {
	return []ModelManifest{
		{
			Name: "silero_vad.onnx",
			URL:  sileroModelURL,
			Size: 2327524, // ~2.2MB
		},
	}
}

// ModelsDir returns the voice models directory inside the ytvoice data dir.
func ModelsDir() string {
	return defaults.ModelsDir()
}

func sileroModelPath() string {
	return filepath.Join(ModelsDir(), "silero_vad.onnx")
}

// onnxRuntimeLibName returns the file name checked in ModelsDir() for a
// locally placed ONNX Runtime shared library.
func onnxRuntimeLibName() string {
	switch runtime.GOOS {
	case "darwin":
		return "libonnxruntime.dylib"
	case "linux":
		return "libonnxruntime.so"
	case "windows":
		return "onnxruntime.dll"
	}
	return ""
}

// ModelStatus reports whether a model is present on disk.
type ModelStatus struct {
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	Downloaded bool   `json:"downloaded"`
}

// Models lists models and where they are kept.
type Models struct {
	Dir       string
	Manifests []ModelManifest
	Client    *http.Client
}

// DefaultModels returns the required models rooted at ModelsDir().
func DefaultModels() *Models {
	return &Models{Dir: ModelsDir(), Manifests: RequiredModels(), Client: http.DefaultClient}
}

// Status returns the download status of each model.
func (m *Models) Status() []ModelStatus {
	out := make([]ModelStatus, 0, len(m.Manifests))
	for _, mf := range m.Manifests {
		out = append(out, ModelStatus{
			Name:       mf.Name,
			Size:       mf.Size,
			Downloaded: modelPresent(filepath.Join(m.Dir, mf.Name), mf),
		})
	}
	return out
}

// Ready returns true if every model is present.
func (m *Models) Ready() bool {
	for _, s := range m.Status() {
		if !s.Downloaded {
			return false
		}
	}
	return true
}

// modelPresent checks if a model file exists and looks valid.
// With a checksum the size must match exactly; otherwise non-empty is enough.
func modelPresent(path string, m ModelManifest) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if m.SHA256 != "" {
		return info.Size() == m.Size
	}
	return info.Size() > 0
}

// Download fetches every missing model, reporting progress per chunk.
func (m *Models) Download(ctx context.Context, progress func(DownloadProgress)) error {
	if progress == nil {
		progress = func(DownloadProgress) {}
	}
	if err := os.MkdirAll(m.Dir, 0755); err != nil {
		return err
	}
	for _, mf := range m.Manifests {
		if modelPresent(filepath.Join(m.Dir, mf.Name), mf) {
			progress(DownloadProgress{Model: mf.Name, Downloaded: mf.Size, Total: mf.Size, Done: true})
			continue
		}
		if err := m.fetch(ctx, mf, progress); err != nil {
			progress(DownloadProgress{Model: mf.Name, Error: err.Error()})
			return fmt.Errorf("failed to download %s: %w", mf.Name, err)
		}
	}
	return nil
}

type progressWriter struct {
	model      string
	total      int64
	downloaded int64
	report     func(DownloadProgress)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.downloaded += int64(len(b))
	p.report(DownloadProgress{Model: p.model, Downloaded: p.downloaded, Total: p.total})
	return len(b), nil
}

func (m *Models) fetch(ctx context.Context, mf ModelManifest, progress func(DownloadProgress)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mf.URL, nil)
	if err != nil {
		return err
	}
	client := m.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, mf.URL)
	}

	total := mf.Size
	if resp.ContentLength > 0 {
		total = resp.ContentLength
	}

	tmp, err := os.CreateTemp(m.Dir, mf.Name+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	hasher := sha256.New()
	pw := &progressWriter{model: mf.Name, total: total, report: progress}
	if _, err := io.Copy(io.MultiWriter(tmp, hasher, pw), resp.Body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if mf.SHA256 != "" {
		if got := hex.EncodeToString(hasher.Sum(nil)); got != mf.SHA256 {
			return fmt.Errorf("checksum mismatch for %s: expected %s, got %s", mf.Name, mf.SHA256, got)
		}
	}
	if err := os.Rename(tmpPath, filepath.Join(m.Dir, mf.Name)); err != nil {
		return err
	}
	progress(DownloadProgress{Model: mf.Name, Downloaded: pw.downloaded, Total: total, Done: true})
	return nil
}
