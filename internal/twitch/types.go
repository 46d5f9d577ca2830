package twitch

// User describes the authenticated Twitch user from the Helix /users endpoint.
type User struct {
	ID              string `json:"id"`
	Login           string `json:"login"`
	DisplayName     string `json:"display_name"`
	Type            string `json:"type,omitempty"`
	BroadcasterType string `json:"broadcaster_type,omitempty"`
	ProfileImageURL string `json:"profile_image_url,omitempty"`
}

// Channel describes the user's channel from the Helix /channels endpoint.
type Channel struct {
	BroadcasterID    string `json:"broadcaster_id"`
	BroadcasterLogin string `json:"broadcaster_login"`
	BroadcasterName  string `json:"broadcaster_name"`
	Title            string `json:"title,omitempty"`
	GameName         string `json:"game_name,omitempty"`
}

// AccountInfo bundles everything resolved after a successful authorization.
type AccountInfo struct {
	User          *User    `json:"user"`
	Channel       *Channel `json:"channel,omitempty"`
	BroadcasterID string   `json:"broadcaster_id"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

type usersResponse struct {
	Data []User `json:"data"`
}

type channelsResponse struct {
	Data []Channel `json:"data"`
}

type validateResponse struct {
	ExpiresIn int `json:"expires_in"`
}
