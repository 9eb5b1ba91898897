package check

import (
	"bytes"
	"context"
	"fmt"
	"gsb/internal/config"
	"gsb/internal/container"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inspectOnly struct {
	status string
	err    error
}

func (r inspectOnly) Inspect(context.Context) (string, error) {
	return r.status, r.err
}

func (r inspectOnly) Start(context.Context) (string, error) {
	return "", nil
}

func (r inspectOnly) Stop(context.Context, time.Duration) (string, error) {
	return "", nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	save := filepath.Join(root, "SavedArks")
	require.NoError(t, os.MkdirAll(save, 0o755))
	return &config.Config{
		BaseDir:   root,
		SaveDir:   save,
		BackupDir: filepath.Join(root, "backups"),
		Container: config.Container{Name: "ark-server"},
	}
}

func TestCheckHost(t *testing.T) {
	cfg := testConfig(t)
	var buf bytes.Buffer

	require.NoError(t, checkHost(context.Background(), &buf, cfg, inspectOnly{status: "running"}))
	assert.Contains(t, buf.String(), "save dir "+cfg.SaveDir+": OK")
	assert.Contains(t, buf.String(), "backup dir "+cfg.BackupDir+": OK")
	assert.Contains(t, buf.String(), "container ark-server: OK (running)")

	entries, err := os.ReadDir(cfg.BackupDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "probe file must be removed")
}

func TestCheckHostFailures(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *config.Config)
		rt      inspectOnly
		wantErr string
	}{
		{
			name:    "missing save dir",
			mutate:  func(cfg *config.Config) { cfg.SaveDir = filepath.Join(cfg.BaseDir, "nope") },
			rt:      inspectOnly{status: "running"},
			wantErr: "save dir",
		},
		{
			name: "save dir is a file",
			mutate: func(cfg *config.Config) {
				cfg.SaveDir = filepath.Join(cfg.BaseDir, "file")
				os.WriteFile(cfg.SaveDir, nil, 0o644)
			},
			rt:      inspectOnly{status: "running"},
			wantErr: "is not a directory",
		},
		{
			name:    "container missing",
			mutate:  func(*config.Config) {},
			rt:      inspectOnly{err: fmt.Errorf("%w: ark-server", container.ErrNotFound)},
			wantErr: "container ark-server",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(cfg)
			err := checkHost(context.Background(), &bytes.Buffer{}, cfg, tt.rt)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestRunBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gsb_config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("base_dir: /tmp\n"), 0o644))

	err := Run(context.Background(), &bytes.Buffer{}, path)
	assert.ErrorContains(t, err, "config:")
}
