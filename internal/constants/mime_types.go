package constants

// MimeTypes maps attachment file extensions to their MIME types
var MimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
}

// DefaultMimeType is the fallback MIME type for unknown attachments
const DefaultMimeType = "application/octet-stream"

// ResizableMimeTypes lists the formats the media stager can downscale
var ResizableMimeTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// MediaCategory returns the publisher upload category for a MIME type
func MediaCategory(mimeType string) string {
	switch mimeType {
	case "image/gif":
		return "tweet_gif"
	case "video/mp4", "video/quicktime":
		return "tweet_video"
	default:
		return "tweet_image"
	}
}

// MimeTypeForExtension returns the MIME type for an extension, including the dot
func MimeTypeForExtension(ext string) string {
	if mt, ok := MimeTypes[ext]; ok {
		return mt
	}
	return DefaultMimeType
}
