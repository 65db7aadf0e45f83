package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/italolelis/premiumize_downloader/internal/downloader"
	"github.com/italolelis/premiumize_downloader/internal/logctx"
)

type Notifier interface {
	Notify(content string) error
}

type DiscordNotifier struct {
	WebhookURL string
	Client     *http.Client
}

func (d *DiscordNotifier) Notify(content string) error {
	if d.WebhookURL == "" {
		return fmt.Errorf("webhook URL is not set")
	}

	payload := map[string]string{"content": content}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Post(d.WebhookURL, "application/json", bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook failed with status %d", resp.StatusCode)
	}

	return nil
}

// Hooks adapts a Notifier into scheduler callbacks. Notification failures
// never affect the download outcome; they are only logged.
func Hooks(ctx context.Context, n Notifier) downloader.Hooks {
	logger := logctx.LoggerFromContext(ctx)

	notify := func(content string) {
		if err := n.Notify(content); err != nil {
			logger.Warn("failed to send notification", "err", err)
		}
	}

	return downloader.Hooks{
		OnDownloadFinished: func(name string) {
			notify(fmt.Sprintf("Downloaded %s", name))
		},
		OnDownloadError: func(name string, err error) {
			notify(fmt.Sprintf("Download of %s failed: %v", name, err))
		},
	}
}
