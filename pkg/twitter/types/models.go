package types

// MediaUploadResponse is returned by the media upload endpoint
type MediaUploadResponse struct {
	MediaID       int64  `json:"media_id"`
	MediaIDString string `json:"media_id_string"`
	Size          int64  `json:"size,omitempty"`
}

// CreateTweetRequest is the body of POST /2/tweets
type CreateTweetRequest struct {
	Text  string      `json:"text,omitempty"`
	Media *TweetMedia `json:"media,omitempty"`
}

// TweetMedia attaches uploaded media to a tweet
type TweetMedia struct {
	MediaIDs []string `json:"media_ids"`
}

// CreateTweetResponse is returned by POST /2/tweets
type CreateTweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

// ErrorResponse covers both the v1.1 and the v2 error shapes
type ErrorResponse struct {
	Title  string `json:"title,omitempty"`
	Detail string `json:"detail,omitempty"`
	Errors []struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message"`
	} `json:"errors,omitempty"`
}

// Message returns the most descriptive text the API supplied
func (e ErrorResponse) Message() string {
	if e.Detail != "" {
		return e.Detail
	}
	if len(e.Errors) > 0 && e.Errors[0].Message != "" {
		return e.Errors[0].Message
	}
	return e.Title
}
