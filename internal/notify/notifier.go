// Package notify delivers operator alerts for oracle activity. Alerts fan out
// to every configured channel (Telegram, Discord) and are filtered by event
// kind so operators can subscribe to submissions, failures, or both.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/halcyonlabs/oraclebridge/internal/domain"
)

// Event kinds the notifier understands.
const (
	EventSubmitted   = "tx_submitted"
	EventCycleFailed = "cycle_failed"
)

// Sender is one delivery channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier fans alerts out to its senders. Only event kinds present in the
// configured set are delivered; an empty set delivers everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Submitted announces a successfully submitted oracle transaction.
func (n *Notifier) Submitted(ctx context.Context, sub domain.Submission) {
	msg := fmt.Sprintf("contract %s\nchoice %s = %d\ntx %s",
		sub.ContractID, sub.ChoiceName, sub.Value, sub.TxID)
	if sub.FeedUTxO != "" {
		msg += "\nfeed " + sub.FeedUTxO
	}
	n.notify(ctx, EventSubmitted, "Oracle input applied", msg)
}

// CycleFailed announces a scan cycle that aborted before submitting anything.
func (n *Notifier) CycleFailed(ctx context.Context, err error) {
	n.notify(ctx, EventCycleFailed, "Oracle cycle failed", err.Error())
}

func (n *Notifier) notify(ctx context.Context, event, title, message string) {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return
	}
	if err := n.dispatch(ctx, title, message); err != nil {
		n.logger.ErrorContext(ctx, "notification delivery incomplete",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// dispatch tries every sender; one channel failing never blocks the others.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	return errors.Join(errs...)
}
