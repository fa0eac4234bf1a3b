package recon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/HerbHall/switchbridge/pkg/models"
)

// Artifact file names written to the artifact directory.
const (
	SwitcherArtifact = "discovered-switchers.json"
	CameraArtifact   = "ptz-cameras.txt"
)

// switcherArtifact is the on-disk shape: parallel arrays indexed together.
type switcherArtifact struct {
	IP    []string `json:"ip"`
	Model []string `json:"model"`
	Name  []string `json:"name"`
}

// ArtifactWriter persists scan results as flat files. Every write replaces
// the file wholesale.
type ArtifactWriter struct {
	dir string
}

// NewArtifactWriter writes into dir.
func NewArtifactWriter(dir string) *ArtifactWriter {
	return &ArtifactWriter{dir: dir}
}

// Path returns the full path of an artifact.
func (w *ArtifactWriter) Path(name string) string {
	return filepath.Join(w.dir, name)
}

// ClearSwitchers resets the switcher artifact to an empty object.
func (w *ArtifactWriter) ClearSwitchers() error {
	return w.write(SwitcherArtifact, []byte("{}"))
}

// WriteSwitchers replaces the switcher artifact with list.
func (w *ArtifactWriter) WriteSwitchers(list []models.DiscoveredSwitcher) error {
	out := switcherArtifact{
		IP:    make([]string, 0, len(list)),
		Model: make([]string, 0, len(list)),
		Name:  make([]string, 0, len(list)),
	}
	for _, s := range list {
		out.IP = append(out.IP, s.IP)
		out.Model = append(out.Model, s.Model)
		out.Name = append(out.Name, s.Name)
	}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode switcher artifact: %w", err)
	}
	return w.write(SwitcherArtifact, b)
}

// WriteCameras replaces the camera artifact with list.
func (w *ArtifactWriter) WriteCameras(list []models.DiscoveredCamera) error {
	return w.write(CameraArtifact, []byte(FormatCameraList(list)))
}

// FormatCameraList renders cameras as "1, a.b.c.d;2, e.f.g.h;".
func FormatCameraList(list []models.DiscoveredCamera) string {
	var b strings.Builder
	for i, c := range list {
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(", ")
		b.WriteString(c.IP)
		b.WriteByte(';')
	}
	return b.String()
}

// write replaces name atomically via a temp file in the same directory.
func (w *ArtifactWriter) write(name string, data []byte) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	tmp, err := os.CreateTemp(w.dir, "."+name+".*")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod %s: %w", name, err)
	}
	if err := os.Rename(tmpName, w.Path(name)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}
