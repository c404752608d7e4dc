package twitter

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"dailypost/internal/errors"
	"dailypost/internal/models"
	"dailypost/pkg/twitter/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCreds = models.Credentials{AccessToken: "user-token", AccessTokenSecret: "user-secret"}

func newTestClient(serverURL string, httpClient *http.Client) *TwitterClient {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return NewClient(models.TwitterConfig{
		APIBaseURL: serverURL,
		UploadURL:    serverURL,
		ClientID:     "client",
		ClientSecret: "client-secret",
	}, httpClient, logger)
}

// oauthParams parses an OAuth 1.0a Authorization header
func oauthParams(t *testing.T, header string) map[string]string {
	t.Helper()
	require.True(t, strings.HasPrefix(header, "OAuth "), "header %q", header)

	params := make(map[string]string)
	for _, pair := range strings.Split(strings.TrimPrefix(header, "OAuth "), ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		require.True(t, ok, "pair %q", pair)
		value, err := url.QueryUnescape(strings.Trim(value, `"`))
		require.NoError(t, err)
		params[key] = value
	}
	return params
}

func assertSigned(t *testing.T, r *http.Request) {
	t.Helper()
	header := r.Header.Get("Authorization")
	params := oauthParams(t, header)
	assert.Equal(t, "client", params["oauth_consumer_key"])
	assert.Equal(t, "user-token", params["oauth_token"])
	assert.Equal(t, "HMAC-SHA1", params["oauth_signature_method"])
	assert.NotEmpty(t, params["oauth_signature"])
	assert.NotEmpty(t, params["oauth_nonce"])
	assert.NotContains(t, header, "user-secret")
	assert.NotContains(t, header, "client-secret")
}

func TestTwitterClient_PublishText(t *testing.T) {
	var got types.CreateTweetRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2/tweets", r.URL.Path)
		assertSigned(t, r)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"data":{"id":"1750000000000000000","text":"hello"}}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL, server.Client())

	result, err := client.Publish(context.Background(), testCreds, models.Post{Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "1750000000000000000", result.ID)
	assert.Equal(t, "https://twitter.com/i/web/status/1750000000000000000", result.Reference())
	assert.Equal(t, "hello", got.Text)
	assert.Nil(t, got.Media)
}

func TestTwitterClient_PublishWithMedia(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stage_123")
	require.NoError(t, os.WriteFile(path, []byte("fake-jpeg"), 0600))

	var uploads, tweets int
	var got types.CreateTweetRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assertSigned(t, r)
		switch r.URL.Path {
		case "/1.1/media/upload.json":
			uploads++
			require.NoError(t, r.ParseMultipartForm(1<<20))
			assert.Equal(t, "tweet_image", r.FormValue("media_category"))
			file, _, err := r.FormFile("media")
			require.NoError(t, err)
			data, _ := io.ReadAll(file)
			assert.Equal(t, "fake-jpeg", string(data))
			_, _ = io.WriteString(w, `{"media_id":710511363345354753,"media_id_string":"710511363345354753"}`)
		case "/2/tweets":
			tweets++
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"data":{"id":"99","text":"caption"}}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL, server.Client())

	result, err := client.Publish(context.Background(), testCreds, models.Post{
		Text:           "caption",
		AttachmentPath: path,
		MimeType:       "image/jpeg",
	})
	require.NoError(t, err)
	assert.Equal(t, "99", result.ID)
	assert.Equal(t, 1, uploads)
	assert.Equal(t, 1, tweets)
	require.NotNil(t, got.Media)
	assert.Equal(t, []string{"710511363345354753"}, got.Media.MediaIDs)
}

func TestTwitterClient_ReasonIsVerbatim(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		expected string
		code     errors.ErrorCode
	}{
		{
			name:     "v2 detail",
			status:   http.StatusForbidden,
			body:     `{"title":"Forbidden","detail":"You are not allowed to create a Tweet with duplicate content.","type":"about:blank","status":403}`,
			expected: "You are not allowed to create a Tweet with duplicate content.",
			code:     errors.ErrCodeAuthentication,
		},
		{
			name:     "v1 errors",
			status:   http.StatusBadRequest,
			body:     `{"errors":[{"code":324,"message":"Image file size must be <= 5242880 bytes"}]}`,
			expected: "Image file size must be <= 5242880 bytes",
			code:     errors.ErrCodePublishFailed,
		},
		{
			name:     "plain body",
			status:   http.StatusServiceUnavailable,
			body:     "Over capacity",
			expected: "Over capacity",
			code:     errors.ErrCodePublishFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer server.Close()

			client := newTestClient(server.URL, server.Client())

			_, err := client.Publish(context.Background(), testCreds, models.Post{Text: "hello"})
			require.Error(t, err)
			assert.Equal(t, tt.expected, errors.Reason(err))
			assert.Equal(t, tt.code, errors.GetCode(err))
		})
	}
}

func TestTwitterClient_RequiresCredentials(t *testing.T) {
	client := newTestClient("http://127.0.0.1:1", nil)

	_, err := client.Publish(context.Background(), models.Credentials{}, models.Post{Text: "hello"})
	assert.Equal(t, errors.ErrCodeAuthentication, errors.GetCode(err))
}

func TestTwitterClient_MissingAttachment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("no request expected, got %s", r.URL.Path)
	}))
	defer server.Close()

	client := newTestClient(server.URL, server.Client())

	_, err := client.Publish(context.Background(), testCreds, models.Post{
		Text:           "caption",
		AttachmentPath: filepath.Join(t.TempDir(), "missing.jpg"),
	})
	assert.Equal(t, errors.ErrCodeAttachmentFetch, errors.GetCode(err))
}

func TestTwitterClient_EmptyTweetID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":{}}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL, server.Client())

	_, err := client.Publish(context.Background(), testCreds, models.Post{Text: "x"})
	assert.Equal(t, errors.ErrCodePublishFailed, errors.GetCode(err))
}

// oauthSignature computes the HMAC-SHA1 signature of a request that carries
// no form body
func oauthSignature(r *http.Request, params map[string]string, consumerSecret, tokenSecret string) string {
	escape := func(v string) string {
		return strings.ReplaceAll(url.QueryEscape(v), "+", "%20")
	}

	var pairs []string
	for k, v := range params {
		if k != "oauth_signature" {
			pairs = append(pairs, escape(k)+"="+escape(v))
		}
	}
	for k, values := range r.URL.Query() {
		for _, v := range values {
			pairs = append(pairs, escape(k)+"="+escape(v))
		}
	}
	sort.Strings(pairs)

	base := r.Method + "&" + escape("http://"+r.Host+r.URL.Path) + "&" + escape(strings.Join(pairs, "&"))
	mac := hmac.New(sha1.New, []byte(escape(consumerSecret)+"&"+escape(tokenSecret)))
	mac.Write([]byte(base))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestTwitterClient_SignsWithTokenSecret(t *testing.T) {
	var params map[string]string
	var expected, stale string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params = oauthParams(t, r.Header.Get("Authorization"))
		expected = oauthSignature(r, params, "client-secret", "user-secret")
		stale = oauthSignature(r, params, "client-secret", "stale-secret")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"data":{"id":"1"}}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL, server.Client())

	_, err := client.Publish(context.Background(), testCreds, models.Post{Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, expected, params["oauth_signature"])
	assert.NotEqual(t, stale, params["oauth_signature"])
}
