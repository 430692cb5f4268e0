package bot

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"net"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/susu3304/tablesplit/internal/events"
)

const notifyQueue = 64

// Minimal session interface for sending channel messages.
type messageSender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Notifier posts payment results and closed tables to the staff channel.
// Publish never blocks the ledger: events are queued and sent by Run.
type Notifier struct {
	session   messageSender
	channelID string
	queue     chan events.Event
	pause     func() time.Duration
}

func NewNotifier(session messageSender, channelID string) *Notifier {
	return &Notifier{
		session:   session,
		channelID: channelID,
		queue:     make(chan events.Event, notifyQueue),
		pause: func() time.Duration {
			return time.Duration(300+rand.Intn(500)) * time.Millisecond
		},
	}
}

func (n *Notifier) Publish(_ context.Context, e events.Event) error {
	if FormatEvent(e) == "" {
		return nil
	}
	select {
	case n.queue <- e:
		return nil
	default:
		return fmt.Errorf("staff notification queue full, dropping %s for session %d", e.Type, e.SessionID)
	}
}

// Run sends queued notifications until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-n.queue:
			if err := n.sendWithRetry(ctx, FormatEvent(e)); err != nil {
				log.Printf("notifier: failed to send %s for session %d to channel %s: %v", e.Type, e.SessionID, n.channelID, err)
			}
		}
	}
}

func (n *Notifier) sendWithRetry(ctx context.Context, content string) error {
	const attemptTimeout = 12 * time.Second
	const maxAttempts = 2

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		sendCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		_, err := n.session.ChannelMessageSend(n.channelID, content, discordgo.WithContext(sendCtx))
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isTemporaryOrTimeout(err) {
			return err
		}
		time.Sleep(n.pause())
	}
	return lastErr
}

func isTemporaryOrTimeout(err error) bool {
	if err == nil {
		return false
	}
	if ne, ok := err.(net.Error); ok {
		return ne.Timeout() || ne.Temporary()
	}
	return false
}

// FormatEvent renders the staff message for an event, or "" when staff are
// not notified of it.
func FormatEvent(e events.Event) string {
	amount := ""
	if e.Amount != nil {
		amount = "R$ " + e.Amount.StringFixed(2)
	}
	switch e.Type {
	case events.DivisionPaid:
		return fmt.Sprintf(":white_check_mark: Sessão %d: %s pagou %s", e.SessionID, e.PayerName, amount)
	case events.DivisionFailed:
		msg := fmt.Sprintf(":x: Sessão %d: pagamento de %s (%s) falhou", e.SessionID, e.PayerName, amount)
		if e.Note != "" {
			msg += " (" + e.Note + ")"
		}
		return msg
	case events.SessionClosed:
		return fmt.Sprintf(":receipt: Sessão %d fechada, conta quitada", e.SessionID)
	}
	return ""
}
