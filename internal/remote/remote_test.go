package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateStorageClass(t *testing.T) {
	tests := []struct {
		name         string
		storageClass string
		wantErr      bool
		errContains  string
	}{
		{
			name:         "STANDARD is accessible",
			storageClass: "STANDARD",
			wantErr:      false,
		},
		{
			name:         "STANDARD_IA is accessible",
			storageClass: "STANDARD_IA",
			wantErr:      false,
		},
		{
			name:         "INTELLIGENT_TIERING is accessible",
			storageClass: "INTELLIGENT_TIERING",
			wantErr:      false,
		},
		{
			name:         "GLACIER is not accessible",
			storageClass: "GLACIER",
			wantErr:      true,
			errContains:  "not immediately accessible",
		},
		{
			name:         "DEEP_ARCHIVE is not accessible",
			storageClass: "DEEP_ARCHIVE",
			wantErr:      true,
			errContains:  "not immediately accessible",
		},
		{
			name:         "empty string is accessible",
			storageClass: "",
			wantErr:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStorageClass(tt.storageClass)

			if tt.wantErr {
				assert.Error(t, err)
				if tt.errContains != "" {
					assert.Contains(t, err.Error(), tt.errContains)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "archives/backup-20261017093000.tar.gz", ArchiveKey("backup-20261017093000.tar.gz"))
	assert.Equal(t, "archives/backup-20261017093000.tar.gz.meta.json", MetadataKey("backup-20261017093000.tar.gz"))
}

// fakeS3 answers HEAD and DELETE object requests for path-style URLs and
// records what it saw.
func fakeS3(t *testing.T) (*httptest.Server, func() []string) {
	t.Helper()
	var mu sync.Mutex
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Method+" "+r.URL.Path)
		mu.Unlock()

		switch {
		case r.Method == http.MethodHead && strings.HasSuffix(r.URL.Path, "/missing.tar.gz"):
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodHead:
			w.Header().Set("Content-Length", "42")
			w.Header().Set("x-amz-meta-blake3", "abc123")
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), seen...)
	}
}

func newTestS3(t *testing.T, endpoint string) *S3 {
	t.Helper()
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(t.TempDir(), "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(t.TempDir(), "credentials"))

	b, err := NewS3(context.Background(), "saves", "us-east-1", "gsb", endpoint, types.StorageClassStandard, 1)
	require.NoError(t, err)
	return b
}

func TestS3HeadAndDelete(t *testing.T) {
	srv, seen := fakeS3(t)
	b := newTestS3(t, srv.URL)
	ctx := context.Background()

	info, err := b.Head(ctx, ArchiveKey("backup-20261017093000.tar.gz"))
	require.NoError(t, err)
	assert.Equal(t, int64(42), info.Size)
	assert.Equal(t, "abc123", info.Blake3)

	require.NoError(t, VerifyUpload(ctx, b, ArchiveKey("backup-20261017093000.tar.gz"), 42, "abc123"))
	assert.ErrorContains(t, VerifyUpload(ctx, b, ArchiveKey("backup-20261017093000.tar.gz"), 41, "abc123"), "remote size mismatch")
	assert.ErrorContains(t, VerifyUpload(ctx, b, ArchiveKey("backup-20261017093000.tar.gz"), 42, "def456"), "remote BLAKE3 mismatch")

	_, err = b.Head(ctx, ArchiveKey("missing.tar.gz"))
	assert.ErrorContains(t, err, "failed to head object gsb/archives/missing.tar.gz")

	require.NoError(t, b.Delete(ctx, ArchiveKey("backup-20261017093000.tar.gz")))

	assert.Contains(t, seen(), "HEAD /saves/gsb/archives/backup-20261017093000.tar.gz")
	assert.Contains(t, seen(), "DELETE /saves/gsb/archives/backup-20261017093000.tar.gz")
}

func TestNewS3RequiresStorageClass(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	_, err := NewS3(context.Background(), "saves", "us-east-1", "", "http://127.0.0.1:1", "", 0)
	assert.ErrorContains(t, err, "storage class must be specified")
}
