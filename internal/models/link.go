package models

import (
	"time"
)

// Link is the authoritative row in PostgreSQL. The redirect path never reads
// it directly; it is projected into a LinkMapping in the edge cache.
type Link struct {
	ID             string     `json:"id"`
	OrgID          string     `json:"org_id"`
	ShortCode      string     `json:"short_code"`
	DestinationURL string     `json:"destination_url"`
	Title          *string    `json:"title,omitempty"`
	CreatedBy      string     `json:"created_by"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	IsActive       bool       `json:"is_active"`
	ClickCount     int64      `json:"click_count"`
}

// Mapping builds the cache projection for this link.
func (l *Link) Mapping() *LinkMapping {
	m := &LinkMapping{
		DestinationURL: l.DestinationURL,
		LinkID:         l.ID,
		IsActive:       l.IsActive,
	}
	if l.ExpiresAt != nil {
		ts := l.ExpiresAt.Unix()
		m.ExpiresAt = &ts
	}
	return m
}

// LinkMapping is the denormalized cache projection of a Link. It carries
// enough state (is_active, expires_at) that the redirect path can decide
// validity without consulting the authoritative store.
type LinkMapping struct {
	DestinationURL string `json:"destination_url"`
	LinkID         string `json:"link_id"`
	ExpiresAt      *int64 `json:"expires_at"` // unix seconds, null = never
	IsActive       bool   `json:"is_active"`
}

// Expired reports whether the mapping is past its expiry at the given time.
func (m *LinkMapping) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && *m.ExpiresAt <= now.Unix()
}

type CreateLinkInput struct {
	OrgID            string
	DestinationURL   string
	Title            *string
	CustomCode       *string
	ExpiresInMinutes *int
	CreatedBy        string
}
