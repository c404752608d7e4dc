package errors

import (
	"fmt"
	"net/http"
	"strings"
)

// Common error creators for the queue and dispatch paths

// NewCapacityError reports an enqueue rejected because the queue is full
func NewCapacityError(chatID string, limit int) *AppError {
	return New(ErrCodeCapacityExceeded, fmt.Sprintf("queue is full (max %d items)", limit)).
		WithContext("chat_id", chatID).
		WithContext("limit", limit).
		WithUserMessage("You have exceeded the maximum queue size.")
}

// NewEmptyQueueError reports an operation on an empty queue
func NewEmptyQueueError(chatID string) *AppError {
	return New(ErrCodeEmptyQueue, "queue is empty").
		WithContext("chat_id", chatID).
		WithUserMessage("Queue is empty")
}

// NewPublishError wraps a publisher rejection. The publisher's reason is kept
// as the cause so it can be forwarded verbatim.
func NewPublishError(chatID string, err error) *AppError {
	return Wrap(err, ErrCodePublishFailed, "publish failed").
		WithContext("chat_id", chatID).
		WithUserMessage("Publishing failed")
}

// NewAttachmentError wraps a failed attachment fetch or staging step
func NewAttachmentError(operation, ref string, err error) *AppError {
	return Wrap(err, ErrCodeAttachmentFetch, fmt.Sprintf("attachment %s failed", operation)).
		WithContext("operation", operation).
		WithContext("attachment_ref", ref).
		WithUserMessage("Attachment could not be fetched")
}

// NewStorageError wraps a key-value store failure
func NewStorageError(operation, key string, err error) *AppError {
	return WrapRetryable(err, ErrCodeStorage, fmt.Sprintf("storage %s failed", operation)).
		WithContext("operation", operation).
		WithContext("key", key).
		WithUserMessage("Storage operation failed")
}

// NewMigrationError reports a chat migration that left keys under both identities
func NewMigrationError(oldChatID, newChatID string, splitKeys []string, err error) *AppError {
	return Wrap(err, ErrCodeMigrationPartial, "chat migration left state split across identities").
		WithContext("old_chat_id", oldChatID).
		WithContext("new_chat_id", newChatID).
		WithContext("split_keys", strings.Join(splitKeys, ",")).
		WithUserMessage("Chat migration was only partially applied")
}

// NewValidationError creates a validation error with field context
func NewValidationError(field, value, message string) *AppError {
	return New(ErrCodeValidationFailed, message).
		WithContext("field", field).
		WithContext("value", value).
		WithUserMessage(fmt.Sprintf("Invalid %s: %s", field, message))
}

// NewConfigError creates a configuration error
func NewConfigError(key, message string) *AppError {
	return New(ErrCodeInvalidConfig, message).
		WithContext("config_key", key).
		WithUserMessage("Configuration error")
}

// NewAPIError creates an error for external service calls
func NewAPIError(service, endpoint string, statusCode int, err error) *AppError {
	code := ErrCodeInternalError
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		code = ErrCodeAuthentication
	case service == "twitter":
		code = ErrCodePublishFailed
	case service == "telegram":
		code = ErrCodeAttachmentFetch
	}

	appErr := Wrap(err, code, fmt.Sprintf("%s API call failed", service)).
		WithContext("service", service).
		WithContext("endpoint", endpoint).
		WithContext("status_code", statusCode)

	// Determine if error is retryable based on status code
	if statusCode >= 500 || statusCode == http.StatusTooManyRequests || statusCode == http.StatusRequestTimeout {
		appErr.Retryable = true
	}

	return appErr
}

// NewNotFoundError creates a not found error with resource context
func NewNotFoundError(resource, identifier string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource)).
		WithContext("resource", resource).
		WithContext("identifier", identifier).
		WithUserMessage(fmt.Sprintf("%s not found", resource))
}

// HTTP helpers

// HTTPStatusCode maps error codes to appropriate HTTP status codes
func HTTPStatusCode(err error) int {
	switch GetCode(err) {
	case ErrCodeValidationFailed, ErrCodeInvalidInput, ErrCodeInvalidConfig:
		return http.StatusBadRequest
	case ErrCodeAuthentication:
		return http.StatusUnauthorized
	case ErrCodeNotFound, ErrCodeEmptyQueue:
		return http.StatusNotFound
	case ErrCodeCapacityExceeded, ErrCodeMigrationConflict:
		return http.StatusConflict
	case ErrCodeTimeout:
		return http.StatusRequestTimeout
	case ErrCodePublishFailed, ErrCodeAttachmentFetch:
		return http.StatusBadGateway
	case ErrCodeStorage, ErrCodeStorageConnection:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HTTPErrorResponse is the JSON body written for failed API calls
type HTTPErrorResponse struct {
	Error struct {
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Context interface{} `json:"context,omitempty"`
	} `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// ToHTTPResponse converts an error to a standardized HTTP response
func ToHTTPResponse(err error, requestID string) HTTPErrorResponse {
	response := HTTPErrorResponse{
		RequestID: requestID,
	}

	appErr, ok := As(err)
	if !ok {
		response.Error.Code = ErrCodeInternalError
		response.Error.Message = GetUserMessage(err)
		return response
	}

	response.Error.Code = appErr.Code
	response.Error.Message = GetUserMessage(err)
	if len(appErr.Context) > 0 {
		publicContext := make(map[string]interface{})
		for k, v := range appErr.Context {
			if k != "token" && k != "secret" && k != "access_token" {
				publicContext[k] = v
			}
		}
		if len(publicContext) > 0 {
			response.Error.Context = publicContext
		}
	}

	return response
}
