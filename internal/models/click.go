package models

import (
	"time"
)

// AnalyticsEvent is one recorded visit. OrgID is always populated from the
// authoritative link, never from the request.
type AnalyticsEvent struct {
	ID        string    `json:"id"`
	LinkID    string    `json:"link_id"`
	OrgID     string    `json:"org_id"`
	Referrer  string    `json:"referrer"`
	UserAgent string    `json:"user_agent"`
	IPAddress string    `json:"ip_address"`
	Country   string    `json:"country"`
	ClickedAt time.Time `json:"clicked_at"`
}

// ClickEvent is the in-flight form queued by the redirect path before the
// authoritative link has been loaded.
type ClickEvent struct {
	LinkID    string
	ShortCode string
	Referrer  string
	UserAgent string
	IPAddress string
	Country   string
}

type ClickStats struct {
	ShortCode    string `json:"short_code"`
	TotalClicks  int64  `json:"total_clicks"`
	UniqueClicks int64  `json:"unique_clicks"`
}

type DailyClickStats struct {
	Date   string `json:"date"`
	Clicks int64  `json:"clicks"`
}
