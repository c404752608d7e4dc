package service

import (
	"context"

	"dailypost/internal/media"
	"dailypost/internal/models"
)

// Publisher posts one item to the external publishing service
type Publisher interface {
	Publish(ctx context.Context, creds models.Credentials, post models.Post) (*models.PublishResult, error)
}

// AttachmentStager materializes an attachment reference as a local file
type AttachmentStager interface {
	Stage(ctx context.Context, ref string) (*media.Staged, error)
}

// Notifier delivers a notification to whoever follows a chat
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

// TextSender is a chat transport that can deliver plain text
type TextSender interface {
	Notify(ctx context.Context, chatID, text string) error
}

// ChatDispatcher runs one dispatch attempt for a chat
type ChatDispatcher interface {
	Dispatch(ctx context.Context, chatID string) (models.DispatchOutcome, error)
}

// DispatchGuard lets other operations wait out in-flight dispatches
type DispatchGuard interface {
	Hold(chatIDs ...string) func()
}
