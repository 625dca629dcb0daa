package domain

import (
	"strings"
	"time"
)

type Client struct {
	ID         int64
	Name       string
	Email      string
	Notes      string
	IsArchived bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewClient creates a new client with required fields
func NewClient(name, email string, now time.Time) *Client {
	return &Client{
		Name:      strings.TrimSpace(name),
		Email:     strings.TrimSpace(email),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate returns an error if the client is invalid
func (c *Client) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return BadRequestf("client name is required")
	}
	return nil
}

type Project struct {
	ID                     int64
	ClientID               int64
	Name                   string
	DefaultHourlyRateCents int64
	IsActive               bool
	IsArchived             bool
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// NewProject creates an active project under a client.
func NewProject(clientID int64, name string, rateCents int64, now time.Time) *Project {
	return &Project{
		ClientID:               clientID,
		Name:                   strings.TrimSpace(name),
		DefaultHourlyRateCents: rateCents,
		IsActive:               true,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
}

// Trackable reports whether new sessions may be started against the project.
func (p *Project) Trackable() bool {
	return p.IsActive && !p.IsArchived
}

// Validate returns an error if the project is invalid
func (p *Project) Validate() error {
	if p.ClientID <= 0 {
		return BadRequestf("client ID is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return BadRequestf("project name is required")
	}
	if p.DefaultHourlyRateCents < 0 {
		return BadRequestf("hourly rate cannot be negative")
	}
	return nil
}
