package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectMimeType(t *testing.T) {
	pngHead := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

	tests := []struct {
		name       string
		remotePath string
		head       []byte
		expected   string
	}{
		{"jpg extension", "photos/file_1.jpg", nil, "image/jpeg"},
		{"upper case extension", "photos/FILE.JPEG", nil, "image/jpeg"},
		{"mp4", "videos/clip.mp4", nil, "video/mp4"},
		{"gif", "animations/a.gif", nil, "image/gif"},
		{"extension wins over content", "photos/x.jpg", pngHead, "image/jpeg"},
		{"sniffed png", "documents/file", pngHead, "image/png"},
		{"nothing known", "documents/file", nil, "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DetectMimeType(tt.remotePath, tt.head))
		})
	}
}

func TestExtensionForMimeType(t *testing.T) {
	assert.Equal(t, ".jpg", ExtensionForMimeType("image/jpeg"))
	assert.Equal(t, ".png", ExtensionForMimeType("image/png"))
	assert.Equal(t, ".mp4", ExtensionForMimeType("video/mp4"))
	assert.Equal(t, ".bin", ExtensionForMimeType("application/x-unknown-thing"))
}

func TestIsResizable(t *testing.T) {
	assert.True(t, IsResizable("image/jpeg"))
	assert.True(t, IsResizable("image/png"))
	assert.False(t, IsResizable("image/gif"))
	assert.False(t, IsResizable("video/mp4"))
}
