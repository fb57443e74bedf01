// Package notify announces newly imported package versions.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/gren-lang/package-registry/internal/telemetry"
)

// Notification describes one released package version.
type Notification struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Summary string `json:"summary"`
	Link    string `json:"link"`
}

// Notifier delivers a notification to one channel.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, n Notification) error
}

// PackageLink is the public overview page of a package version.
func PackageLink(canonicalURL, name, version string) string {
	return fmt.Sprintf("%s/package/%s/version/%s/overview",
		strings.TrimRight(canonicalURL, "/"), url.PathEscape(name), version)
}

// New builds a notification for a package version.
func New(canonicalURL, name, version, summary string) Notification {
	return Notification{
		Name:    name,
		Version: version,
		Summary: summary,
		Link:    PackageLink(canonicalURL, name, version),
	}
}

// Multi fans a notification out to every channel. Delivery is attempted on
// all channels even if one fails; the errors are joined.
type Multi struct {
	channels []Notifier
	log      *slog.Logger
}

func NewMulti(log *slog.Logger, channels ...Notifier) *Multi {
	return &Multi{channels: channels, log: log}
}

func (m *Multi) Name() string { return "multi" }

// Len reports the number of configured channels.
func (m *Multi) Len() int { return len(m.channels) }

func (m *Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, ch := range m.channels {
		err := ch.Notify(ctx, n)
		telemetry.NotificationResult(ch.Name(), err)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
			continue
		}
		m.log.Info("notification sent", "channel", ch.Name(), "name", n.Name, "version", n.Version)
	}
	return errors.Join(errs...)
}
