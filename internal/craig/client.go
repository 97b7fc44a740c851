// Package craig downloads per-speaker audio from a Craig recording via the
// v1 cook-job API:
//
//  1. POST /api/v1/recordings/{id}/job?key={key}  start the cook job
//  2. GET  /api/v1/recordings/{id}/job?key={key}  poll until status "complete"
//  3. GET  /dl/{outputFileName}                   download the cooked ZIP
package craig

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/kaedehara/minutes-pipeline/internal/config"
	"github.com/kaedehara/minutes-pipeline/internal/errs"
	"github.com/kaedehara/minutes-pipeline/internal/logger"
	"github.com/kaedehara/minutes-pipeline/internal/recording"
)

type Client struct {
	cfg    config.CraigConfig
	http   *http.Client
	logger logger.Logger

	// baseURL overrides https://{recording.Domain} when set (tests).
	baseURL      string
	pollInterval time.Duration
}

// New creates a download client. The client is stateless and safe for use by
// concurrent pipeline runs.
func New(cfg config.CraigConfig, log logger.Logger) *Client {
	return &Client{
		cfg:          cfg,
		http:         &http.Client{},
		logger:       log,
		pollInterval: 2 * time.Second,
	}
}

type jobResponse struct {
	Job struct {
		ID             string `json:"id"`
		Status         string `json:"status"`
		OutputFileName string `json:"outputFileName"`
	} `json:"job"`
}

// Download runs the cook-job flow and extracts per-speaker tracks into
// destDir. Zero usable tracks is a failure, not an empty success.
func (c *Client) Download(ctx context.Context, rec *recording.Recording, destDir string) ([]recording.SpeakerAudio, error) {
	base := c.baseURL
	if base == "" {
		base = "https://" + rec.Domain
	}
	jobURL := fmt.Sprintf("%s/api/v1/recordings/%s/job?key=%s", base, rec.ID, rec.AccessKey)

	c.startJob(ctx, jobURL, rec.ID)

	outputName, err := c.pollUntilComplete(ctx, jobURL, rec.ID)
	if err != nil {
		return nil, err
	}

	dlURL := fmt.Sprintf("%s/dl/%s", base, outputName)
	c.logger.Info(ctx, "Downloading cooked file from %s", dlURL)

	zipBytes, err := c.downloadBytes(ctx, dlURL)
	if err != nil {
		return nil, err
	}

	tracks, err := recording.ExtractArchive(ctx, zipBytes, destDir, c.logger)
	if err != nil {
		return nil, errs.Acquisition("invalid archive for recording %s", rec.ID).WithCause(err)
	}
	if len(tracks) == 0 {
		return nil, errs.Acquisition("no audio tracks found in archive for recording %s", rec.ID)
	}

	c.logger.Info(ctx, "Downloaded %d audio tracks for recording %s", len(tracks), rec.ID)
	return tracks, nil
}

// startJob posts the cook request. Failure is non-fatal: the job may already
// be running from a previous attempt, in which case polling still succeeds.
func (c *Client) startJob(ctx context.Context, jobURL, recID string) {
	payload := map[string]any{
		"type": "recording",
		"options": map[string]any{
			"format":     c.cfg.CookFormat,
			"container":  c.cfg.CookContainer,
			"dynaudnorm": false,
		},
	}
	body, _ := json.Marshal(payload)

	c.logger.Info(ctx, "Starting cook job for recording %s (format=%s, container=%s)",
		recID, c.cfg.CookFormat, c.cfg.CookContainer)

	reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, jobURL, bytes.NewReader(body))
	if err != nil {
		c.logger.Warn(ctx, "Cook job start request failed (non-fatal): %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn(ctx, "Cook job start request failed (non-fatal): %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		c.logger.Info(ctx, "Cook job started (HTTP %d)", resp.StatusCode)
	} else {
		c.logger.Warn(ctx, "Cook job start returned HTTP %d", resp.StatusCode)
	}
}

// pollUntilComplete polls the job endpoint until the job reports complete,
// returning its output file name. The poll deadline is independent of (and
// shorter than) any overall run timeout.
func (c *Client) pollUntilComplete(ctx context.Context, jobURL, recID string) (string, error) {
	deadline := time.Now().Add(time.Duration(c.cfg.PollTimeoutSec) * time.Second)

	c.logger.Info(ctx, "Polling job status for recording %s (timeout=%ds)", recID, c.cfg.PollTimeoutSec)

	for time.Now().Before(deadline) {
		name, done, err := c.pollOnce(ctx, jobURL)
		if err != nil {
			return "", err
		}
		if done {
			return name, nil
		}

		select {
		case <-ctx.Done():
			return "", errs.Acquisition("cancelled while polling job for recording %s", recID).WithCause(ctx.Err())
		case <-time.After(c.pollInterval):
		}
	}

	return "", errs.AcquisitionTimeout("job polling timed out after %ds for recording %s", c.cfg.PollTimeoutSec, recID)
}

func (c *Client) pollOnce(ctx context.Context, jobURL string) (name string, done bool, err error) {
	reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, reqErr := http.NewRequestWithContext(reqCtx, http.MethodGet, jobURL, nil)
	if reqErr != nil {
		return "", false, errs.Acquisition("build job poll request").WithCause(reqErr)
	}

	resp, doErr := c.http.Do(req)
	if doErr != nil {
		// Transient: keep polling until the deadline.
		c.logger.Warn(ctx, "Job poll error: %v", doErr)
		return "", false, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn(ctx, "Job poll returned HTTP %d", resp.StatusCode)
		return "", false, nil
	}

	var jr jobResponse
	if decErr := json.NewDecoder(resp.Body).Decode(&jr); decErr != nil {
		c.logger.Warn(ctx, "Job poll returned unparsable body: %v", decErr)
		return "", false, nil
	}

	switch jr.Job.Status {
	case "complete":
		if jr.Job.OutputFileName == "" {
			return "", false, errs.Acquisition("job complete but no output file name in response")
		}
		c.logger.Info(ctx, "Job complete, output: %s", jr.Job.OutputFileName)
		return jr.Job.OutputFileName, true, nil
	case "error", "failed":
		return "", false, errs.Acquisition("cook job failed with status %q", jr.Job.Status)
	default:
		c.logger.Debug(ctx, "Job poll: status=%s", jr.Job.Status)
		return "", false, nil
	}
}

// downloadBytes fetches the cooked archive, retrying with exponential
// backoff up to cfg.MaxRetries extra attempts.
func (c *Client) downloadBytes(ctx context.Context, url string) ([]byte, error) {
	attempt := 0
	maxAttempts := c.cfg.MaxRetries + 1

	op := func() ([]byte, error) {
		attempt++

		reqCtx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.DownloadTimeoutSec)*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			c.logger.Warn(ctx, "Download attempt %d/%d failed: %v", attempt, maxAttempts, err)
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			c.logger.Warn(ctx, "Download attempt %d/%d: HTTP %d", attempt, maxAttempts, resp.StatusCode)
			return nil, fmt.Errorf("download failed with HTTP %d", resp.StatusCode)
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			c.logger.Warn(ctx, "Download attempt %d/%d read failed: %v", attempt, maxAttempts, err)
			return nil, err
		}
		return data, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second

	data, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(maxAttempts)),
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, errs.AcquisitionTimeout("download timed out from %s", url).WithCause(err)
		}
		return nil, errs.Acquisition("download failed from %s", url).WithCause(err)
	}
	return data, nil
}
