package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/containrrr/shoutrrr"
	"github.com/sirupsen/logrus"

	"github.com/KanavDutta/signalfence/core"
)

// Notifier sends an outward alert for a security event.
type Notifier interface {
	Notify(ctx context.Context, ev *Event) error
}

// ShoutrrrNotifier alerts every configured shoutrrr URL (slack://, discord://, smtp://,
// generic+https://, ...) for events at the configured severities.
type ShoutrrrNotifier struct {
	cfg  core.AlertConfig
	log  logrus.FieldLogger
	send func(url, message string) error
}

// NewShoutrrrNotifier creates a notifier for cfg.
func NewShoutrrrNotifier(cfg core.AlertConfig, log logrus.FieldLogger) *ShoutrrrNotifier {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ShoutrrrNotifier{cfg: cfg, log: log, send: shoutrrr.Send}
}

// Notify sends ev to every URL when its severity is alerted on.
func (n *ShoutrrrNotifier) Notify(ctx context.Context, ev *Event) error {
	if len(n.cfg.URLs) == 0 || !n.cfg.AlertsOn(ev.Severity) {
		return nil
	}
	msg := Message(ev)

	var errs []error
	for _, url := range n.cfg.URLs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := n.send(url, msg); err != nil {
			n.log.WithError(err).WithField("event", ev.ID).Warn("failed to send security alert")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Message renders ev as a chat-friendly alert.
func Message(ev *Event) string {
	title := fmt.Sprintf("[%s] %s blocked %s %s", ev.Severity, ev.Type, ev.Method, ev.Path)
	return fmt.Sprintf("%s\n\n%s\nip: %s\nrule: %s\nmode: %s", title, ev.Reason, ev.IP, ev.RuleID, ev.Mode)
}
