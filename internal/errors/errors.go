// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// ErrCampaignNotFound is a sentinel error
type ErrCampaignNotFound struct {
	CampaignID string
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign %s not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id string) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// ErrExecutionExists is returned by start when a live loop already owns
// the campaign.
type ErrExecutionExists struct {
	CampaignID string
}

func (e *ErrExecutionExists) Error() string {
	return fmt.Sprintf("campaign %s already has a live execution", e.CampaignID)
}

func NewExecutionExists(id string) error {
	return &ErrExecutionExists{CampaignID: id}
}

// ErrInvalidTransition is returned for commands the state machine rejects.
type ErrInvalidTransition struct {
	CampaignID string
	From       string
	Command    string
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("campaign %s: cannot %s from status %s", e.CampaignID, e.Command, e.From)
}

func NewInvalidTransition(id, from, command string) error {
	return &ErrInvalidTransition{CampaignID: id, From: from, Command: command}
}

// IsNotFound reports whether err is a campaign-not-found error.
func IsNotFound(err error) bool {
	var nf *ErrCampaignNotFound
	return errors.As(err, &nf)
}
