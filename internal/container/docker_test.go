package container

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDocker writes a shell script standing in for the docker CLI. It logs
// its arguments and answers inspect with the content of the state file.
func fakeDocker(t *testing.T) (binary, argsLog, stateFile string) {
	t.Helper()
	dir := t.TempDir()
	binary = filepath.Join(dir, "docker")
	argsLog = filepath.Join(dir, "args.log")
	stateFile = filepath.Join(dir, "state")

	script := `#!/bin/sh
echo "$@" >> "` + argsLog + `"
case "$1" in
inspect)
  if [ ! -f "` + stateFile + `" ]; then
    echo "Error: No such object: $4" >&2
    exit 1
  fi
  cat "` + stateFile + `"
  ;;
start)
  echo running > "` + stateFile + `"
  echo "$2"
  ;;
stop)
  echo exited > "` + stateFile + `"
  echo "$4"
  ;;
esac
`
	require.NoError(t, os.WriteFile(binary, []byte(script), 0o755))
	return binary, argsLog, stateFile
}

func TestDockerInspectNotFound(t *testing.T) {
	binary, _, _ := fakeDocker(t)
	d := NewDocker(binary, "ark-server")

	_, err := d.Inspect(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDockerLifecycle(t *testing.T) {
	binary, argsLog, stateFile := fakeDocker(t)
	require.NoError(t, os.WriteFile(stateFile, []byte("exited\n"), 0o644))
	d := NewDocker(binary, "ark-server")
	ctx := context.Background()

	status, err := d.Inspect(ctx)
	require.NoError(t, err)
	assert.Equal(t, "exited", status)

	status, err = d.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, "running", status)

	status, err = d.Stop(ctx, 45*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "exited", status)

	data, err := os.ReadFile(argsLog)
	require.NoError(t, err)
	assert.Contains(t, string(data), "inspect -f {{.State.Status}} ark-server")
	assert.Contains(t, string(data), "start ark-server")
	assert.Contains(t, string(data), "stop -t 45 ark-server")
}

func TestDockerMissingBinary(t *testing.T) {
	d := NewDocker(filepath.Join(t.TempDir(), "nope"), "ark-server")
	_, err := d.Inspect(context.Background())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
