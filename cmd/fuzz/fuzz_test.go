package fuzz

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"permfuzz/internal/config"
)

func TestLoadCorpusReadsRegularFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.bin"), []byte{1, 2, 3}, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.bin"), []byte{4, 5}, 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0755))

	seeds, err := loadCorpus(dir)
	require.NoError(t, err)
	require.Len(t, seeds, 2)
	for _, s := range seeds {
		assert.True(t, s.Initial, "every seed loaded from the corpus directory must be marked Initial")
	}
}

func TestLoadCorpusMissingDirErrors(t *testing.T) {
	_, err := loadCorpus(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err, "expected an error for a nonexistent corpus directory")
}

func TestRuntimeConfigsMapsFields(t *testing.T) {
	cfg := config.Default()
	cfg.Runtimes = []config.Runtime{
		{Label: "jdk-a", ExecutablePath: "/usr/bin/a", Args: []string{"{input}"}},
		{Label: "jdk-b", ExecutablePath: "/usr/bin/b"},
	}
	rts := runtimeConfigs(cfg)
	require.Len(t, rts, 2)
	assert.Equal(t, "jdk-a", rts[0].Label)
	assert.Equal(t, "/usr/bin/a", rts[0].ExecutablePath)
}
