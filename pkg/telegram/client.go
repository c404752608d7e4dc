// Package telegram is a small Bot API client covering what the queue needs
// from its chat transport: fetching attachments and sending plain messages.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dailypost/internal/errors"
	"dailypost/pkg/circuitbreaker"
	"dailypost/pkg/constants"
	"dailypost/pkg/telegram/types"

	"github.com/sirupsen/logrus"
)

const serviceName = "telegram"

type Client interface {
	GetFile(ctx context.Context, fileID string) (*types.File, error)
	DownloadFile(ctx context.Context, fileID string, w io.Writer) (string, error)
	SendMessage(ctx context.Context, chatID, text string) (*types.Message, error)
	Notify(ctx context.Context, chatID, text string) error
}

var _ Client = (*TelegramClient)(nil)

type TelegramClient struct {
	baseURL string
	token   string
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
	logger  *logrus.Logger
}

// NewClient creates a Bot API client. breaker may be nil.
func NewClient(baseURL, token string, httpClient *http.Client, breaker *circuitbreaker.CircuitBreaker, logger *logrus.Logger) *TelegramClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: constants.DefaultTelegramTimeoutSec * time.Second}
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	if baseURL == "" {
		baseURL = constants.DefaultTelegramAPIURL
	}

	return &TelegramClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		client:  httpClient,
		breaker: breaker,
		logger:  logger,
	}
}

func (c *TelegramClient) GetFile(ctx context.Context, fileID string) (*types.File, error) {
	var file types.File
	query := url.Values{"file_id": {fileID}}
	if err := c.call(ctx, http.MethodGet, "getFile?"+query.Encode(), nil, &file); err != nil {
		return nil, err
	}
	if file.FilePath == "" {
		return nil, errors.NewAttachmentError("get_file", fileID, fmt.Errorf("file has no download path"))
	}
	return &file, nil
}

// DownloadFile streams the file behind fileID into w and returns its remote
// path, whose extension identifies the format.
func (c *TelegramClient) DownloadFile(ctx context.Context, fileID string, w io.Writer) (string, error) {
	file, err := c.GetFile(ctx, fileID)
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/file/bot%s/%s", c.baseURL, c.token, file.FilePath)
	err = c.guard(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return c.redact(fmt.Errorf("failed to download file: %w", err))
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, constants.MaxErrorBodyBytes))
			apiErr := errors.NewAPIError(serviceName, "file", resp.StatusCode,
				fmt.Errorf("download failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
			if resp.StatusCode >= 500 {
				return apiErr
			}
			return permanent(apiErr)
		}

		// Write failures belong to the caller, not to the transport
		if _, err := io.Copy(w, resp.Body); err != nil {
			return permanent(fmt.Errorf("failed to save downloaded file: %w", err))
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	c.logger.WithFields(logrus.Fields{
		"file_path": file.FilePath,
		"file_size": file.FileSize,
	}).Debug("Downloaded Telegram file")
	return file.FilePath, nil
}

func (c *TelegramClient) SendMessage(ctx context.Context, chatID, text string) (*types.Message, error) {
	var msg types.Message
	if err := c.call(ctx, http.MethodPost, "sendMessage", types.SendMessageRequest{ChatID: chatID, Text: text}, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Notify delivers a plain text notification to a chat
func (c *TelegramClient) Notify(ctx context.Context, chatID, text string) error {
	if _, err := c.SendMessage(ctx, chatID, text); err != nil {
		return errors.Wrap(err, errors.ErrCodeNotifyFailed, "failed to deliver notification").
			WithContext("service", serviceName)
	}
	return nil
}

// call performs a Bot API method and decodes its result into out
func (c *TelegramClient) call(ctx context.Context, httpMethod, method string, payload, out interface{}) error {
	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	apiMethod := strings.SplitN(method, "?", 2)[0]

	return c.guard(ctx, func(ctx context.Context) error {
		var body io.Reader
		if payload != nil {
			jsonData, err := json.Marshal(payload)
			if err != nil {
				return permanent(fmt.Errorf("failed to marshal request: %w", err))
			}
			body = bytes.NewReader(jsonData)
		}

		req, err := http.NewRequestWithContext(ctx, httpMethod, endpoint, body)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return c.redact(fmt.Errorf("failed to send request: %w", err))
		}
		defer resp.Body.Close()

		var envelope types.Response
		if err := json.NewDecoder(io.LimitReader(resp.Body, constants.BytesPerMegabyte)).Decode(&envelope); err != nil {
			apiErr := errors.NewAPIError(serviceName, apiMethod, resp.StatusCode,
				fmt.Errorf("failed to decode response: status %d: %w", resp.StatusCode, err))
			if resp.StatusCode >= 500 {
				return apiErr
			}
			return permanent(apiErr)
		}

		if !envelope.OK {
			status := envelope.ErrorCode
			if status == 0 {
				status = resp.StatusCode
			}
			apiErr := errors.NewAPIError(serviceName, apiMethod, status, fmt.Errorf("%s", envelope.Description))
			if status >= 500 {
				return apiErr
			}
			return permanent(apiErr)
		}

		if out != nil && len(envelope.Result) > 0 {
			if err := json.Unmarshal(envelope.Result, out); err != nil {
				return permanent(fmt.Errorf("failed to decode result: %w", err))
			}
		}
		return nil
	})
}

// permanentError marks a failure that says nothing about transport health,
// such as an API rejection, so the breaker does not count it.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }

func permanent(err error) error { return &permanentError{err: err} }

// guard runs fn through the circuit breaker
func (c *TelegramClient) guard(ctx context.Context, fn func(ctx context.Context) error) error {
	var callErr error
	run := func(ctx context.Context) error {
		err := fn(ctx)
		var p *permanentError
		if stderrors.As(err, &p) {
			callErr = p.err
			return nil
		}
		return err
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(ctx, run)
	} else {
		err = run(ctx)
	}

	if circuitbreaker.IsCircuitBreakerError(err) {
		return errors.WrapRetryable(err, errors.ErrCodeAttachmentFetch, "telegram unavailable").
			WithContext("service", serviceName)
	}
	if err != nil {
		if _, ok := errors.As(err); ok {
			return err
		}
		return errors.WrapRetryable(err, errors.ErrCodeAttachmentFetch, "telegram request failed").
			WithContext("service", serviceName)
	}
	return callErr
}

// redact strips the bot token from errors that embed the request URL
func (c *TelegramClient) redact(err error) error {
	if err == nil || c.token == "" {
		return err
	}
	msg := strings.ReplaceAll(err.Error(), c.token, "<token>")
	return fmt.Errorf("%s", msg)
}
