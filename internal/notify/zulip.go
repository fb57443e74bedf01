package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Zulip posts a stream message per release, with the package name as topic.
type Zulip struct {
	realm    string
	username string
	apiKey   string
	stream   string
	client   *http.Client
}

func NewZulip(realm, username, apiKey, stream string) *Zulip {
	if stream == "" {
		stream = "packages"
	}
	return &Zulip{
		realm:    strings.TrimRight(realm, "/"),
		username: username,
		apiKey:   apiKey,
		stream:   stream,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (z *Zulip) Name() string { return "zulip" }

type zulipResponse struct {
	Result string `json:"result"`
	Msg    string `json:"msg"`
	ID     int64  `json:"id"`
}

func (z *Zulip) Notify(ctx context.Context, n Notification) error {
	form := url.Values{}
	form.Set("type", "stream")
	form.Set("to", z.stream)
	form.Set("topic", n.Name)
	form.Set("content", zulipContent(n))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, z.realm+"/api/v1/messages", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(z.username, z.apiKey)

	resp, err := z.client.Do(req)
	if err != nil {
		return fmt.Errorf("post message: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	var zr zulipResponse
	_ = json.Unmarshal(body, &zr)
	if resp.StatusCode >= http.StatusBadRequest || zr.Result != "success" {
		return fmt.Errorf("zulip rejected message: status %d: %s", resp.StatusCode, zr.Msg)
	}
	return nil
}

func zulipContent(n Notification) string {
	return fmt.Sprintf("Version %s is now available!\n\nSummary: %s\nLink: %s\n", n.Version, n.Summary, n.Link)
}
