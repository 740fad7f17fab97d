package cmd

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateFilePath_PathTraversal(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		wantErr     bool
		errContains string
	}{
		{
			name:    "simple relative path",
			path:    "fixtures.yaml",
			wantErr: false,
		},
		{
			name:    "nested relative path",
			path:    "exports/fixtures.yaml",
			wantErr: false,
		},
		{
			name:        "absolute path outside working directory",
			path:        "/tmp/fixtures.yaml",
			wantErr:     true,
			errContains: "path escapes current directory",
		},
		{
			name:        "parent directory traversal",
			path:        "../../../etc/passwd",
			wantErr:     true,
			errContains: "path traversal detected",
		},
		{
			name:        "traversal in the middle",
			path:        "exports/../../secrets.yaml",
			wantErr:     true,
			errContains: "path traversal detected",
		},
		{
			name:        "url-encoded traversal",
			path:        "..%2F..%2Fetc%2Fpasswd",
			wantErr:     true,
			errContains: "path traversal detected",
		},
		{
			name:        "doubled dots with separator",
			path:        "....//fixtures.yaml",
			wantErr:     true,
			errContains: "path traversal detected",
		},
		{
			name:        "windows style traversal",
			path:        "..\\..\\windows\\system32",
			wantErr:     true,
			errContains: "path traversal detected",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateFilePath(tt.path)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateFilePath_EdgeCases(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{name: "empty path", path: "", wantErr: false},
		{name: "current directory", path: ".", wantErr: false},
		{name: "bare parent directory", path: "..", wantErr: true},
		{name: "hidden file", path: ".fixtures.yaml", wantErr: false},
		{name: "path with spaces", path: "my fixtures.yaml", wantErr: false},
		{name: "deeply nested path", path: "a/b/c/d/fixtures.yaml", wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateFilePath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestImportCmd_RejectsTraversalPath(t *testing.T) {
	cmd := NewDatasetsCmd()
	cmd.SetArgs([]string{"import", "../../../etc/passwd"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid file path")
}

func TestExportCmd_RejectsTraversalPath(t *testing.T) {
	cmd := NewDatasetsCmd()
	cmd.SetArgs([]string{"export", "/tmp/evil.yaml"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid file path")
}

func TestImportCmd_MissingFile(t *testing.T) {
	cmd := NewDatasetsCmd()
	cmd.SetArgs([]string{"import", "does-not-exist.yaml"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to stat file")
}

func TestImportCmd_LargeFileDoS(t *testing.T) {
	tmpDir := t.TempDir()

	oldWd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(tmpDir))
	defer func() {
		require.NoError(t, os.Chdir(oldWd))
	}()

	// One chunk over the cap is enough to trip the size check
	data := make([]byte, maxImportFileSize+1024)
	require.NoError(t, os.WriteFile("huge.json", data, 0644))

	cmd := NewDatasetsCmd()
	cmd.SetArgs([]string{"import", "huge.json"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	err = cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file too large")
}

func TestImportCmd_UnsupportedFormat(t *testing.T) {
	tmpDir := t.TempDir()

	oldWd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(tmpDir))
	defer func() {
		require.NoError(t, os.Chdir(oldWd))
	}()

	require.NoError(t, os.WriteFile("fixtures.txt", []byte("charts: []"), 0644))

	cmd := NewDatasetsCmd()
	cmd.SetArgs([]string{"import", "fixtures.txt"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	err = cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported fixture format")
}

func TestMaxImportFileSize(t *testing.T) {
	assert.Equal(t, int64(10*1024*1024), int64(maxImportFileSize))
}
