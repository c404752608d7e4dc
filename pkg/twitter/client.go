// Package twitter publishes queued items as tweets on behalf of a chat's
// authorized account.
package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dailypost/internal/constants"
	"dailypost/internal/errors"
	"dailypost/internal/models"
	pkgconstants "dailypost/pkg/constants"
	"dailypost/pkg/twitter/types"

	"github.com/dghubble/oauth1"
	"github.com/sirupsen/logrus"
)

const serviceName = "twitter"

type Client interface {
	Publish(ctx context.Context, creds models.Credentials, post models.Post) (*models.PublishResult, error)
}

var _ Client = (*TwitterClient)(nil)

type TwitterClient struct {
	apiURL    string
	uploadURL string
	statusFmt string
	oauth     *oauth1.Config
	client    *http.Client
	logger    *logrus.Logger
}

// NewClient creates a publisher from config. Every call is signed with
// OAuth 1.0a: the app's client credentials are the consumer key pair and the
// chat's stored access token and secret are the user token pair.
func NewClient(config models.TwitterConfig, httpClient *http.Client, logger *logrus.Logger) *TwitterClient {
	if httpClient == nil {
		timeout := config.TimeoutSec
		if timeout <= 0 {
			timeout = pkgconstants.DefaultTwitterTimeoutSec
		}
		httpClient = &http.Client{Timeout: time.Duration(timeout) * time.Second}
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}

	apiURL := config.APIBaseURL
	if apiURL == "" {
		apiURL = pkgconstants.DefaultTwitterAPIURL
	}
	uploadURL := config.UploadURL
	if uploadURL == "" {
		uploadURL = pkgconstants.DefaultTwitterUploadURL
	}
	return &TwitterClient{
		apiURL:    strings.TrimSuffix(apiURL, "/"),
		uploadURL: strings.TrimSuffix(uploadURL, "/"),
		statusFmt: pkgconstants.DefaultTwitterStatusURLFmt,
		oauth:     oauth1.NewConfig(config.ClientID, config.ClientSecret),
		client: httpClient,
		logger: logger,
	}
}

// Publish uploads the attachment, if any, and posts the tweet. Failures
// carry the API's own explanation as their reason.
func (c *TwitterClient) Publish(ctx context.Context, creds models.Credentials, post models.Post) (*models.PublishResult, error) {
	if creds.IsZero() {
		return nil, errors.New(errors.ErrCodeAuthentication, "chat has not authorized publishing").
			WithUserMessage("Publishing is not authorized for this chat")
	}

	httpClient := c.authorizedClient(ctx, creds)

	req := types.CreateTweetRequest{Text: post.Text}
	if post.AttachmentPath != "" {
		mediaID, err := c.uploadMedia(ctx, httpClient, post)
		if err != nil {
			return nil, err
		}
		req.Media = &types.TweetMedia{MediaIDs: []string{mediaID}}
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := c.apiURL + "/2/tweets"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var created types.CreateTweetResponse
	if err := c.do(httpClient, httpReq, "tweets", &created); err != nil {
		return nil, err
	}
	if created.Data.ID == "" {
		return nil, errors.NewAPIError(serviceName, "tweets", http.StatusOK, fmt.Errorf("response carried no tweet id"))
	}

	c.logger.WithFields(logrus.Fields{
		"tweet_id":  created.Data.ID,
		"has_media": req.Media != nil,
	}).Debug("Published tweet")

	return &models.PublishResult{
		ID:  created.Data.ID,
		URL: fmt.Sprintf(c.statusFmt, created.Data.ID),
	}, nil
}

func (c *TwitterClient) authorizedClient(ctx context.Context, creds models.Credentials) *http.Client {
	base := context.WithValue(ctx, oauth1.HTTPClient, c.client)
	authorized := c.oauth.Client(base, oauth1.NewToken(creds.AccessToken, creds.AccessTokenSecret))
	authorized.Timeout = c.client.Timeout
	return authorized
}

func (c *TwitterClient) uploadMedia(ctx context.Context, httpClient *http.Client, post models.Post) (string, error) {
	f, err := os.Open(post.AttachmentPath)
	if err != nil {
		return "", errors.NewAttachmentError("open", post.AttachmentPath, err)
	}
	defer f.Close()

	mimeType := post.MimeType
	if mimeType == "" {
		mimeType = constants.MimeTypeForExtension(strings.ToLower(filepath.Ext(post.AttachmentPath)))
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("media_category", constants.MediaCategory(mimeType)); err != nil {
		return "", fmt.Errorf("failed to write form field: %w", err)
	}
	part, err := writer.CreateFormFile("media", filepath.Base(post.AttachmentPath))
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", errors.NewAttachmentError("read", post.AttachmentPath, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	endpoint := c.uploadURL + "/1.1/media/upload.json"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var uploaded types.MediaUploadResponse
	if err := c.do(httpClient, req, "media/upload", &uploaded); err != nil {
		return "", err
	}
	if uploaded.MediaIDString == "" {
		if uploaded.MediaID == 0 {
			return "", errors.NewAPIError(serviceName, "media/upload", http.StatusOK, fmt.Errorf("response carried no media id"))
		}
		uploaded.MediaIDString = fmt.Sprintf("%d", uploaded.MediaID)
	}
	return uploaded.MediaIDString, nil
}

// do sends req and decodes a 2xx JSON body into out. Any other status
// becomes a publish error whose reason is the API's message.
func (c *TwitterClient) do(httpClient *http.Client, req *http.Request, endpoint string, out interface{}) error {
	resp, err := httpClient.Do(req)
	if err != nil {
		return errors.WrapRetryable(err, errors.ErrCodePublishFailed, "twitter request failed").
			WithContext("service", serviceName).
			WithContext("endpoint", endpoint)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, pkgconstants.MaxErrorBodyBytes))
		reason := strings.TrimSpace(string(raw))
		var apiErr types.ErrorResponse
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Message() != "" {
			reason = apiErr.Message()
		}
		if reason == "" {
			reason = resp.Status
		}
		return errors.NewAPIError(serviceName, endpoint, resp.StatusCode, fmt.Errorf("%s", reason))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.NewAPIError(serviceName, endpoint, resp.StatusCode, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}
