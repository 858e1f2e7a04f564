package domain

import "time"

// Link binds a short code to its destination URL and click metrics
type Link struct {
	ID            int64      `json:"id"`
	Code          string     `json:"code"`
	TargetURL     string     `json:"target_url"`
	OwnerID       string     `json:"owner_id,omitempty"` // empty when ownership is disabled
	Clicks        int64      `json:"clicks"`
	LastClickedAt *time.Time `json:"last_clicked_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// PublicView strips the owner reference for unauthenticated stats consumers.
func (l Link) PublicView() Link {
	l.OwnerID = ""
	return l
}
