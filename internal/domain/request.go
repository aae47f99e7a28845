package domain

// TestAlertRequest is the body of POST /api/v1/recipients/{recipientId}/alerts/test.
// Creators use it while setting up an overlay to preview every alert type.
type TestAlertRequest struct {
	Type          AlertType `json:"type"`
	Username      string    `json:"username"`
	Message       string    `json:"message,omitempty"`
	Amount        float64   `json:"amount,omitempty"`
	Months        int       `json:"months,omitempty"`
	VideoURL      string    `json:"videoUrl,omitempty"`
	VideoDuration int64     `json:"videoDuration,omitempty"`
}

// DefaultDisplayMs is how long an overlay shows an alert without media.
const DefaultDisplayMs = 5000

// Payload converts the request into its alert variant.
func (r TestAlertRequest) Payload() (Payload, error) {
	if r.Username == "" {
		return nil, ErrInvalidUsername
	}
	switch r.Type {
	case AlertFollow:
		return Follow{Username: r.Username}, nil
	case AlertSubscribe:
		return Subscribe{Username: r.Username}, nil
	case AlertSubscriptionRenewal:
		return SubscriptionRenewal{Username: r.Username, Months: r.Months}, nil
	case AlertTip:
		return Tip{Username: r.Username, Message: r.Message, Amount: r.Amount}, nil
	}
	return nil, ErrInvalidAlertType
}

// Media returns the attached clip, or nil when no URL was given. A clip
// without a duration plays for DefaultDisplayMs.
func (r TestAlertRequest) Media() *Media {
	if r.VideoURL == "" {
		return nil
	}
	d := r.VideoDuration
	if d <= 0 {
		d = DefaultDisplayMs
	}
	return &Media{URL: r.VideoURL, DurationMs: d}
}
