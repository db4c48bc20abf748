package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"livefeed/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	assert.Equal(t, 2, cfg.PageSize)
	assert.Equal(t, []string{"image/png", "image/jpg", "image/jpeg"}, cfg.AcceptedImageTypes)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "livefeed.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
page_size = 10
accepted_image_types = ["image/png"]
allow_origin = "https://blog.example.com"
`), 0o644))

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.PageSize)
	assert.Equal(t, []string{"image/png"}, cfg.AcceptedImageTypes)
	assert.Equal(t, "https://blog.example.com", cfg.AllowOrigin)
}

func TestLoadConfigKeepsDefaultsForMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "livefeed.toml")
	require.NoError(t, os.WriteFile(path, []byte(`page_size = 4`), 0o644))

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.PageSize)
	assert.Equal(t, []string{"image/png", "image/jpg", "image/jpeg"}, cfg.AcceptedImageTypes)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := config.LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}
