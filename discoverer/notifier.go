// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package discoverer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/kalepool/kalepool/executor"
)

const (
	notifyRetries     = 3
	notifyBackoffBase = 500 * time.Millisecond
	notifyBackoffCap  = 8 * time.Second
	notifyTimeout     = 10 * time.Second
)

// Notifier hands a planted-farmer set to the executor.
type Notifier interface {
	Notify(ctx context.Context, n *executor.Notification) error
}

// HTTPNotifier posts notifications to the executor's backend endpoint with
// bearer auth, retrying transient failures with exponential backoff.
type HTTPNotifier struct {
	url    string
	token  string
	client *http.Client
}

var _ Notifier = (*HTTPNotifier)(nil)

// NewHTTPNotifier creates a notifier for the executor at the given base URL.
func NewHTTPNotifier(executorURL, token string) *HTTPNotifier {
	return &HTTPNotifier{
		url:    strings.TrimSuffix(executorURL, "/") + "/backend/planted-farmers",
		token:  token,
		client: &http.Client{Timeout: notifyTimeout},
	}
}

// Notify delivers the notification, retrying failed posts. The caller keeps
// the block operation at planting_completed when this returns an error, so a
// rediscovery can resend the same set.
func (n *HTTPNotifier) Notify(ctx context.Context, note *executor.Notification) error {
	body, err := json.Marshal(note)
	if err != nil {
		return errors.Wrap(err, "marshal notification")
	}

	var lastErr error
	for attempt := 0; attempt <= notifyRetries; attempt++ {
		if attempt > 0 {
			metricNotifyRetries().Add(1)
			if !sleepContext(ctx, notifyDelay(attempt-1)) {
				return ctx.Err()
			}
		}
		if lastErr = n.post(ctx, body); lastErr == nil {
			return nil
		}
		logger.Warn("executor notification attempt failed",
			"index", note.BlockIndex, "attempt", attempt+1, "err", lastErr)
	}
	return lastErr
}

func (n *HTTPNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.token)

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Errorf("executor returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func notifyDelay(attempt int) time.Duration {
	d := notifyBackoffBase << uint(attempt)
	if d <= 0 || d > notifyBackoffCap {
		return notifyBackoffCap
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
