package appErrors

import (
	"errors"
	"fmt"
)

// ErrCampaignNotFound is returned when a campaign id does not resolve.
type ErrCampaignNotFound struct {
	CampaignID string
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %s not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id string) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

type ErrProspectNotFound struct {
	ProspectID string
}

func (e *ErrProspectNotFound) Error() string {
	return fmt.Sprintf("prospect with ID %s not found", e.ProspectID)
}

func NewProspectNotFound(id string) error {
	return &ErrProspectNotFound{ProspectID: id}
}

type ErrAccountNotFound struct {
	AccountID string
}

func (e *ErrAccountNotFound) Error() string {
	return fmt.Sprintf("outreach account with ID %s not found", e.AccountID)
}

func NewAccountNotFound(id string) error {
	return &ErrAccountNotFound{AccountID: id}
}

// IsNotFound matches any of the not-found errors above.
func IsNotFound(err error) bool {
	var c *ErrCampaignNotFound
	var p *ErrProspectNotFound
	var a *ErrAccountNotFound
	return errors.As(err, &c) || errors.As(err, &p) || errors.As(err, &a)
}

// InvalidTransitionError reports a state change the lifecycle rules forbid.
// It is always returned to the caller and never retried.
type InvalidTransitionError struct {
	ProspectID string
	From       string
	To         string
	Reason     string
}

func (e *InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("invalid transition for prospect %s: %s -> %s", e.ProspectID, e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func NewInvalidTransition(prospectID, from, to, reason string) error {
	return &InvalidTransitionError{ProspectID: prospectID, From: from, To: to, Reason: reason}
}

func IsInvalidTransition(err error) bool {
	var e *InvalidTransitionError
	return errors.As(err, &e)
}

// ErrClaimLost means a conditional update matched no row because another
// pass got there first. Callers skip the prospect.
var ErrClaimLost = errors.New("claim lost to a concurrent dispatch pass")

type ProviderErrorKind string

const (
	ProviderTimeout ProviderErrorKind = "timeout"
	ProviderFailure ProviderErrorKind = "error"
)

// ProviderError wraps a failed call to the outreach provider or the
// workflow orchestrator.
type ProviderError struct {
	Provider   string
	Kind       ProviderErrorKind
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s (status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the provider rejected the call outright, so a
// repeat cannot double-send.
func (e *ProviderError) Retryable() bool {
	if e.Kind != ProviderFailure {
		return false
	}
	switch e.StatusCode {
	case 429, 502, 503, 504:
		return true
	}
	return false
}

func IsProviderTimeout(err error) bool {
	var e *ProviderError
	return errors.As(err, &e) && e.Kind == ProviderTimeout
}

// ConfigurationError describes campaign settings that were degraded to a
// safe default.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error in %s: %s", e.Field, e.Message)
}

// CampaignTransitionError reports a campaign status change outside the
// campaign lifecycle.
type CampaignTransitionError struct {
	CampaignID string
	From       string
	To         string
}

func (e *CampaignTransitionError) Error() string {
	return fmt.Sprintf("campaign %s cannot move from %s to %s", e.CampaignID, e.From, e.To)
}

// ValidationError rejects caller input before any state is touched.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidation(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

func IsValidation(err error) bool {
	var v *ValidationError
	var c *ConfigurationError
	return errors.As(err, &v) || errors.As(err, &c)
}
