package models

// QueueEntry is one pending content item for a chat
type QueueEntry struct {
	Text          string `json:"text"`
	AttachmentRef string `json:"attachment_ref,omitempty"`
}

// HasAttachment reports whether the entry references an external file
func (e QueueEntry) HasAttachment() bool {
	return e.AttachmentRef != ""
}

// PhotoSize is one resolution of an inbound photo
type PhotoSize struct {
	FileID string `json:"file_id"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Area returns the pixel count of the photo
func (p PhotoSize) Area() int {
	return p.Width * p.Height
}

// Document is an inbound file sent as-is
type Document struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// InboundItem is a chat message that should be queued
type InboundItem struct {
	Text     string      `json:"text"`
	Document *Document   `json:"document,omitempty"`
	Photos   []PhotoSize `json:"photos,omitempty"`
}
