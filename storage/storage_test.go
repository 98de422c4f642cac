package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateMD5(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name        string
		content     string
		expectedMD5 string
	}{
		{name: "SimpleText", content: "Hello, World!", expectedMD5: "65a8e27d8879283831b664bd8b7f0ad4"},
		{name: "EmptyFile", content: "", expectedMD5: "d41d8cd98f00b204e9800998ecf8427e"},
		{name: "LargerContent", content: "The quick brown fox jumps over the lazy dog", expectedMD5: "9e107d9d372bb6826bd81d3542a419d6"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filePath := filepath.Join(tmpDir, tt.name+".txt")
			require.NoError(t, os.WriteFile(filePath, []byte(tt.content), 0644))

			md5hash, err := CalculateMD5(filePath)
			require.NoError(t, err)
			assert.Equal(t, tt.expectedMD5, md5hash)
		})
	}
}

func TestCalculateMD5NonExistentFile(t *testing.T) {
	_, err := CalculateMD5("/nonexistent/file.txt")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open file")
}

func TestSharedHTTPClient(t *testing.T) {
	assert.NotNil(t, sharedHTTPClient)
	assert.NotNil(t, sharedHTTPClient.Transport)
	assert.Greater(t, sharedHTTPClient.Timeout.Seconds(), float64(0))
}

func BenchmarkCalculateMD5(b *testing.B) {
	tmpDir := b.TempDir()
	filePath := filepath.Join(tmpDir, "benchmark.txt")
	content := make([]byte, 1024*1024)
	for i := range content {
		content[i] = byte(i % 256)
	}
	os.WriteFile(filePath, content, 0644)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = CalculateMD5(filePath)
	}
}
