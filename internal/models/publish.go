package models

// Post is what the dispatcher hands to the publisher
type Post struct {
	Text           string
	AttachmentPath string
	MimeType       string
}

// PublishResult identifies a published item on the external service
type PublishResult struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Reference returns the user-facing reference of the published item
func (r *PublishResult) Reference() string {
	if r == nil {
		return "<nothing was published>"
	}
	if r.URL != "" {
		return r.URL
	}
	return r.ID
}

// Notification is a plain text message for a chat
type Notification struct {
	ChatID string `json:"chat_id"`
	Kind   string `json:"kind"`
	Text   string `json:"text"`
}

// Notification kinds
const (
	NotifyPublished       = "published"
	NotifyPublishedQueued = "published_still_queued"
	NotifyQueueEmpty      = "queue_empty"
	NotifyPublishFailed   = "publish_failed"
	NotifyEnqueued        = "enqueued"
	NotifyRemoved         = "removed"
	NotifyMigrated        = "migrated"
)

// DispatchOutcome describes how a dispatch attempt ended
type DispatchOutcome string

const (
	OutcomeEmpty     DispatchOutcome = "empty"
	OutcomePublished DispatchOutcome = "published"
	OutcomeFailed    DispatchOutcome = "failed"
	OutcomeSkipped   DispatchOutcome = "skipped"
)
