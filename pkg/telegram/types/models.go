package types

import "encoding/json"

// Response is the envelope of every Bot API reply
type Response struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
}

// File is the metadata returned by getFile
type File struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	FileSize     int64  `json:"file_size,omitempty"`
	FilePath     string `json:"file_path,omitempty"`
}

// SendMessageRequest is the body of sendMessage
type SendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

// Message is the subset of a sent message the client reads back
type Message struct {
	MessageID int64 `json:"message_id"`
	Date      int64 `json:"date"`
}
