package media

import (
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"dailypost/internal/constants"
)

// DetectMimeType resolves the MIME type of a staged attachment. The
// extension of the transport's remote path wins; sniffed content is the
// fallback for extensionless references.
func DetectMimeType(remotePath string, head []byte) string {
	ext := strings.ToLower(filepath.Ext(remotePath))
	if ext != "" {
		if mt := constants.MimeTypeForExtension(ext); mt != constants.DefaultMimeType {
			return mt
		}
		if mt := mime.TypeByExtension(ext); mt != "" {
			return stripParams(mt)
		}
	}

	if len(head) == 0 {
		return constants.DefaultMimeType
	}
	return stripParams(http.DetectContentType(head))
}

// ExtensionForMimeType returns the preferred file extension for a MIME type
func ExtensionForMimeType(mimeType string) string {
	for ext, mt := range constants.MimeTypes {
		if mt == mimeType && ext != ".jpeg" {
			return ext
		}
	}
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

// IsResizable reports whether the stager can downscale the format
func IsResizable(mimeType string) bool {
	return constants.ResizableMimeTypes[mimeType]
}

func stripParams(mt string) string {
	if i := strings.Index(mt, ";"); i >= 0 {
		return strings.TrimSpace(mt[:i])
	}
	return mt
}
