package report

import (
	"context"
	"fmt"
	"go.uber.org/zap"
	"resty.dev/v3"
	"time"
	"werewolf-bdd/applog"
)

const defaultUploadTimeout = 30 * time.Second

// Uploader posts finished reports to a collector over HTTP.
type Uploader struct {
	url        string
	httpClient *resty.Client
}

func NewUploader(url string) *Uploader {
	return &Uploader{
		url:        url,
		httpClient: resty.New().SetTimeout(defaultUploadTimeout),
	}
}

func (u *Uploader) Close() error {
	return u.httpClient.Close()
}

func (u *Uploader) Upload(ctx context.Context, r *Report) error {
	resp, err := u.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(r).
		Post(u.url)

	if err != nil {
		return fmt.Errorf("uploading report failed: %w", err)
	}

	if !resp.IsSuccess() {
		return fmt.Errorf("uploading report failed: %v", resp.Status())
	}

	applog.Info("Report uploaded",
		zap.String("url", u.url),
		zap.String("runId", r.RunID),
		zap.Int("status", resp.StatusCode()),
	)
	return nil
}
