package security

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	safeDir := filepath.Join(tmpDir, "safe")
	unsafeDir := filepath.Join(tmpDir, "unsafe")
	require.NoError(t, os.MkdirAll(safeDir, 0o755))
	require.NoError(t, os.MkdirAll(unsafeDir, 0o755))
	require.NoError(t, os.Symlink(unsafeDir, filepath.Join(safeDir, "evil-symlink")))

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"file in dir", filepath.Join(safeDir, "path.png"), false},
		{"nested new dir", filepath.Join(safeDir, "renders", "path.png"), false},
		{"dir itself", safeDir, false},
		{"dot dot", filepath.Join(safeDir, "..", "path.png"), true},
		{"sibling", filepath.Join(unsafeDir, "path.png"), true},
		{"through symlink", filepath.Join(safeDir, "evil-symlink", "path.png"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathWithinDirectory(tt.path, safeDir)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrOutsideDirectory)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateOutputPath(t *testing.T) {
	assert.NoError(t, ValidateOutputPath("path.png"))
	assert.NoError(t, ValidateOutputPath(filepath.Join(os.TempDir(), "path.png")))
	assert.ErrorIs(t, ValidateOutputPath("/proc/self/path.png"), ErrOutsideDirectory)
}
