// Package n8n hands dispatch batches to the workflow orchestrator webhook.
package n8n

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/unclebandit/prospect-outreach/internal/integration"
)

const providerName = "n8n"

type Client struct {
	http       *resty.Client
	webhookURL string
	retry      integration.RetryPolicy
	logger     *zap.Logger
}

func New(webhookURL string, timeout time.Duration, retry integration.RetryPolicy, logger *zap.Logger) *Client {
	http := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json")

	return &Client{http: http, webhookURL: webhookURL, retry: retry, logger: logger}
}

// TriggerBatch posts job and returns once the orchestrator accepted it.
// Results come back later through the status callback.
func (c *Client) TriggerBatch(ctx context.Context, job integration.BatchJob) error {
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(job).
			Post(c.webhookURL)
		return integration.Classify(providerName, resp, err)
	})
	if err != nil {
		c.logger.Warn("orchestrator webhook failed",
			zap.String("campaign_id", job.CampaignID),
			zap.Int("prospects", len(job.Prospects)),
			zap.Error(err),
		)
		return err
	}

	c.logger.Info("batch handed to orchestrator",
		zap.String("campaign_id", job.CampaignID),
		zap.Int("prospects", len(job.Prospects)),
	)
	return nil
}
