package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeList(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "list.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRun(t *testing.T) {
	tests := []struct {
		name    string
		content string
		status  int
		output  string
	}{
		{"clean", `{"Eva": ["Rei"], "Metroid": ["Samus Aran"]}`, 0, "No duplicate keys detected! ✅"},
		{"duplicates", `{"Eva": ["Rei"], "Metroid": [], "Eva": ["Asuka"]}`, 1, "Duplicate key(s) found: Eva ❌"},
		{"malformed", `{"Eva": [`, 1, "malformed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			status := run([]string{writeList(t, tt.content)}, &stdout, &stderr)

			assert.Equal(t, tt.status, status)
			assert.Contains(t, stdout.String(), tt.output)
		})
	}
}

func TestRun_Usage(t *testing.T) {
	var stdout, stderr bytes.Buffer

	assert.Equal(t, 2, run(nil, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "usage: dupcheck")
}

func TestRun_MissingFile(t *testing.T) {
	var stdout, stderr bytes.Buffer

	status := run([]string{filepath.Join(t.TempDir(), "nope.json")}, &stdout, &stderr)

	assert.Equal(t, 1, status)
	assert.Contains(t, stderr.String(), "nope.json")
}
