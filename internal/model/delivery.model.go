package model

// DeliveryRequest is everything needed to send one report message.
type DeliveryRequest struct {
	Authors       []string
	Receivers     []string
	Link          string
	RawDataLink   string
	Channel       string
	ThreadContent string
	ThreadTS      string
	// Date is rendered as-is; empty means today in the delivery zone.
	Date     string
	FilePath string
}

type RecipientMatch struct {
	Input      string  `json:"input_name"`
	UserID     string  `json:"user_id,omitempty"`
	RealName   string  `json:"real_name,omitempty"`
	Username   string  `json:"username,omitempty"`
	Mention    string  `json:"mention"`
	Confidence float64 `json:"match_score"`
	Kind       string  `json:"match_type"`
}

type DeliveryResult struct {
	Channel     string            `json:"channel"`
	MessageTS   string            `json:"timestamp,omitempty"`
	ThreadTS    string            `json:"thread_ts,omitempty"`
	FileID      string            `json:"file_id,omitempty"`
	Text        string            `json:"text"`
	UsedThread  bool              `json:"used_existing_thread"`
	ThreadScore float64           `json:"thread_score,omitempty"`
	Authors     []*RecipientMatch `json:"authors"`
	Receivers   []*RecipientMatch `json:"receivers"`
}
