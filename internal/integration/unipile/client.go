// Package unipile is the direct-send path to the outreach provider.
package unipile

import (
	"context"
	"errors"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/prospect-outreach/internal/errors"
	"github.com/unclebandit/prospect-outreach/internal/integration"
)

const providerName = "unipile"

// Client posts invites to the provider's /invite endpoint.
type Client struct {
	http   *resty.Client
	retry  integration.RetryPolicy
	logger *zap.Logger
}

// New builds a client. timeout caps one HTTP attempt; callers bound the
// whole call with their context.
func New(baseURL, apiKey string, timeout time.Duration, retry integration.RetryPolicy, logger *zap.Logger) *Client {
	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("X-API-KEY", apiKey)

	return &Client{http: http, retry: retry, logger: logger}
}

// SendInvite asks the provider to send one connection request or message.
// A 2xx with status "error" is a definite, non-retryable failure.
func (c *Client) SendInvite(ctx context.Context, req integration.InviteRequest) (*integration.InviteResult, error) {
	var result integration.InviteResult

	err := c.retry.Do(ctx, func(ctx context.Context) error {
		result = integration.InviteResult{}
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(req).
			SetResult(&result).
			Post("/invite")
		return integration.Classify(providerName, resp, err)
	})
	if err != nil {
		c.logger.Warn("provider invite failed",
			zap.String("recipient", req.RecipientIdentifier),
			zap.Error(err),
		)
		return nil, err
	}

	if result.Status != "ok" {
		msg := result.Error
		if msg == "" {
			msg = "provider returned status " + result.Status
		}
		return nil, &appErrors.ProviderError{
			Provider: providerName,
			Kind:     appErrors.ProviderFailure,
			Err:      errors.New(msg),
		}
	}

	c.logger.Debug("provider invite sent",
		zap.String("recipient", req.RecipientIdentifier),
		zap.String("provider_message_id", result.ProviderMessageID),
	)
	return &result, nil
}
