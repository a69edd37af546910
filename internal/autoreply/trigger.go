// Package autoreply delivers the automated-assistant side effect: when a
// direct message mentions the trigger phrase, a generated reply is sent back
// on a detached goroutine. Nothing in this package may affect the outcome of
// the primary send.
package autoreply

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"campuschat/internal/bus"
	"campuschat/internal/domain"
	"campuschat/internal/metrics"
	"campuschat/internal/mutate"
)

// Trigger watches successfully sent messages and fires the assistant reply
// when one qualifies.
type Trigger struct {
	generator     domain.ReplyGenerator
	sender        *mutate.Coordinator
	events        *bus.EventBus
	phrase        string
	assistantName string
	timeout       time.Duration
	logger        *slog.Logger

	wg sync.WaitGroup // observed only by tests
}

type Config struct {
	// Phrase is matched case-insensitively as a substring of the sent text.
	Phrase        string
	AssistantName string
	Timeout       time.Duration
	Logger        *slog.Logger
}

func New(generator domain.ReplyGenerator, sender *mutate.Coordinator, events *bus.EventBus, cfg Config) *Trigger {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.AssistantName == "" {
		cfg.AssistantName = "Assistant"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Trigger{
		generator:     generator,
		sender:        sender,
		events:        events,
		phrase:        cfg.Phrase,
		assistantName: cfg.AssistantName,
		timeout:       cfg.Timeout,
		logger:        cfg.Logger,
	}
}

// Observe inspects a message whose send already succeeded and, if it
// qualifies, fires the reply on a detached goroutine. The caller never waits
// for the outcome.
func (t *Trigger) Observe(sent domain.Message) {
	if !t.qualifies(sent) {
		return
	}

	t.events.Emit(bus.Event{Type: bus.EventAutoReplyQueued, Payload: map[string]any{"to": sent.SenderID}})
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				t.logger.Error("auto-reply panic discarded", "panic", r)
			}
		}()
		t.reply(sent)
	}()
}

func (t *Trigger) qualifies(sent domain.Message) bool {
	if t.generator == nil || t.phrase == "" {
		return false
	}
	if sent.Broadcast() {
		return false
	}
	// Never reply to the assistant's own messages.
	if sent.SenderID == domain.AssistantID {
		return false
	}
	return strings.Contains(strings.ToLower(sent.Text), strings.ToLower(t.phrase))
}

// reply runs outside the primary send path. Every failure here is logged
// and discarded.
func (t *Trigger) reply(sent domain.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	text, err := t.generator.Generate(ctx, sent.Text, sent.SenderName)
	if err != nil {
		t.logger.Warn("auto-reply generation failed", "err", err)
		return
	}

	if _, err := t.sender.SendAs(ctx, domain.AssistantID, t.assistantName, text, sent.SenderID, nil); err != nil {
		t.logger.Warn("auto-reply delivery failed", "err", err)
		return
	}
	metrics.AutoRepliesTotal.Inc()
	t.logger.Debug("auto-reply delivered", "to", sent.SenderID)
}
