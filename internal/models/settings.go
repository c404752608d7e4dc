package models

// ChatSettings is the per-chat scheduling configuration
type ChatSettings struct {
	Timezone       string `json:"timezone"`
	PostTime       string `json:"post_time"`
	LastDispatched string `json:"last_dispatched,omitempty"`
	Authorized     bool   `json:"authorized"`
}

// Credentials is the opaque publisher authorization for a chat
type Credentials struct {
	AccessToken       string `json:"access_token"`
	AccessTokenSecret string `json:"access_token_secret"`
}

// IsZero reports whether no credentials are present
func (c Credentials) IsZero() bool {
	return c.AccessToken == ""
}
