package recon

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HerbHall/switchbridge/internal/testutil"
	"github.com/HerbHall/switchbridge/pkg/models"
)

func readArtifact(t *testing.T, w *ArtifactWriter, name string) string {
	t.Helper()
	b, err := os.ReadFile(w.Path(name))
	require.NoError(t, err)
	return string(b)
}

func TestWriteSwitchersParallelArrays(t *testing.T) {
	w := NewArtifactWriter(t.TempDir())
	list := []models.DiscoveredSwitcher{
		testutil.NewDiscoveredSwitcher(testutil.WithIP("10.0.0.5"), testutil.WithName("Studio")),
		testutil.NewDiscoveredSwitcher(testutil.WithIP("10.0.0.9"), testutil.WithModel(14, "ATEM Mini Extreme"), testutil.WithName("Truck")),
	}
	require.NoError(t, w.WriteSwitchers(list))

	var got map[string][]string
	require.NoError(t, json.Unmarshal([]byte(readArtifact(t, w, SwitcherArtifact)), &got))
	assert.Equal(t, []string{"10.0.0.5", "10.0.0.9"}, got["ip"])
	assert.Equal(t, []string{"ATEM Mini Pro", "ATEM Mini Extreme"}, got["model"])
	assert.Equal(t, []string{"Studio", "Truck"}, got["name"])
}

func TestWriteSwitchersEmptyHasArrays(t *testing.T) {
	w := NewArtifactWriter(t.TempDir())
	require.NoError(t, w.WriteSwitchers(nil))
	assert.JSONEq(t, `{"ip":[],"model":[],"name":[]}`, readArtifact(t, w, SwitcherArtifact))
}

func TestClearSwitchers(t *testing.T) {
	w := NewArtifactWriter(t.TempDir())
	require.NoError(t, w.WriteSwitchers([]models.DiscoveredSwitcher{testutil.NewDiscoveredSwitcher()}))
	require.NoError(t, w.ClearSwitchers())
	assert.Equal(t, "{}", readArtifact(t, w, SwitcherArtifact))
}

func TestFormatCameraList(t *testing.T) {
	assert.Equal(t, "", FormatCameraList(nil))
	assert.Equal(t, "1, 10.0.0.20;2, 10.0.0.21;",
		FormatCameraList(testutil.NewDiscoveredCameras("10.0.0.20", "10.0.0.21")))
}

func TestWriteCamerasLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	w := NewArtifactWriter(dir)
	require.NoError(t, w.WriteCameras(testutil.NewDiscoveredCameras("10.0.0.20")))
	require.NoError(t, w.WriteCameras(testutil.NewDiscoveredCameras("10.0.0.30")))

	assert.Equal(t, "1, 10.0.0.30;", readArtifact(t, w, CameraArtifact))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
