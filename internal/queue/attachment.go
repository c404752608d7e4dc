package queue

import (
	"dailypost/internal/models"
)

// LargestPhoto returns the resolution with the largest area. Ties keep the
// first one seen.
func LargestPhoto(photos []models.PhotoSize) (models.PhotoSize, bool) {
	if len(photos) == 0 {
		return models.PhotoSize{}, false
	}

	best := 0
	bestArea := 0
	for i, p := range photos {
		if area := p.Area(); area > bestArea {
			best, bestArea = i, area
		}
	}
	return photos[best], true
}

// ResolveAttachment picks the attachment reference for an inbound item: a
// document wins over photos.
func ResolveAttachment(item models.InboundItem) string {
	if item.Document != nil && item.Document.FileID != "" {
		return item.Document.FileID
	}
	if photo, ok := LargestPhoto(item.Photos); ok {
		return photo.FileID
	}
	return ""
}

// EntryFromInbound builds the queue entry for an inbound chat message
func EntryFromInbound(item models.InboundItem) models.QueueEntry {
	return models.QueueEntry{
		Text:          item.Text,
		AttachmentRef: ResolveAttachment(item),
	}
}
