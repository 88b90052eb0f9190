package models

import (
	"sort"
	"time"
)

// Federation is a named set of platforms that barter with each other.
type Federation struct {
	ID        string             `gorm:"primaryKey;size:128"`
	Members   []FederationMember `gorm:"foreignKey:FederationID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FederationMember links a platform to a federation.
type FederationMember struct {
	FederationID string `gorm:"primaryKey;size:128"`
	PlatformID   string `gorm:"primaryKey;size:128"`
}

// NewFederation builds a federation from member platform ids.
func NewFederation(id string, platformIDs ...string) Federation {
	f := Federation{ID: id}
	for _, p := range platformIDs {
		f.Members = append(f.Members, FederationMember{FederationID: id, PlatformID: p})
	}
	return f
}

// MemberIDs returns the member platform ids, sorted.
func (f Federation) MemberIDs() []string {
	ids := make([]string, 0, len(f.Members))
	for _, m := range f.Members {
		ids = append(ids, m.PlatformID)
	}
	sort.Strings(ids)
	return ids
}

// HasMember reports whether platformID belongs to the federation.
func (f Federation) HasMember(platformID string) bool {
	for _, m := range f.Members {
		if m.PlatformID == platformID {
			return true
		}
	}
	return false
}

// DuplicateMembers returns platform ids listed more than once.
func (f Federation) DuplicateMembers() []string {
	seen := make(map[string]int, len(f.Members))
	var dups []string
	for _, m := range f.Members {
		seen[m.PlatformID]++
		if seen[m.PlatformID] == 2 {
			dups = append(dups, m.PlatformID)
		}
	}
	return dups
}
