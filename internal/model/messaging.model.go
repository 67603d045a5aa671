package model

// User is one entry of the messaging platform's member directory.
type User struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	RealName    string `json:"real_name"`
	DisplayName string `json:"display_name"`
	Deleted     bool   `json:"deleted"`
	IsBot       bool   `json:"is_bot"`
}

type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ChannelMessage struct {
	TS       string `json:"ts"`
	Text     string `json:"text"`
	Subtype  string `json:"subtype,omitempty"`
	ThreadTS string `json:"thread_ts,omitempty"`
	User     string `json:"user,omitempty"`
}

type PostResult struct {
	Channel string `json:"channel"`
	TS      string `json:"ts"`
}

type UploadResult struct {
	FileID string `json:"file_id"`
}
