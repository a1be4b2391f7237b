// Package notify provides best-effort broadcast of new-course announcements
// to every chat known to coursebot.
package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/lukaszraczylo/coursebot/pkg/models"
)

// Sender delivers one message to one chat.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Recipients lists every chat id known to the bot.
type Recipients interface {
	All(ctx context.Context) ([]int64, error)
}

// Announcer decouples the conversational critical path from delivery:
// Announce only enqueues, a single worker drains the queue and fans out.
// Per-recipient failures are logged and skipped; nothing is retried and
// nothing propagates back to the flow that committed the course.
type Announcer struct {
	sender     Sender
	recipients Recipients
	queue      chan models.Course
}

// NewAnnouncer creates an announcer with the given queue depth.
func NewAnnouncer(sender Sender, recipients Recipients, buffer int) *Announcer {
	if buffer <= 0 {
		buffer = 64
	}
	return &Announcer{
		sender:     sender,
		recipients: recipients,
		queue:      make(chan models.Course, buffer),
	}
}

// Announce enqueues a committed course for broadcast. Never blocks: when the
// queue is full the announcement is dropped and logged.
func (a *Announcer) Announce(course models.Course) {
	select {
	case a.queue <- course:
	default:
		log.Warn().Str("name", course.Name).Msg("Announcement queue full, dropping broadcast")
	}
}

// Run drains the queue until ctx is done.
func (a *Announcer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case course := <-a.queue:
			a.broadcast(ctx, course)
		}
	}
}

func (a *Announcer) broadcast(ctx context.Context, course models.Course) {
	ids, err := a.recipients.All(ctx)
	if err != nil {
		log.Warn().Err(err).Str("name", course.Name).Msg("Recipient list unavailable, skipping broadcast")
		return
	}

	text := fmt.Sprintf("New course available!\n\n%s (%s)\n%s", course.Name, course.Category, course.Link)

	delivered := 0
	for _, chatID := range ids {
		if ctx.Err() != nil {
			return
		}
		if err := a.sender.SendMessage(ctx, chatID, text); err != nil {
			log.Warn().Err(err).Int64("chatId", chatID).Str("name", course.Name).Msg("Announcement delivery failed")
			continue
		}
		delivered++
	}
	log.Info().Str("name", course.Name).Int("recipients", len(ids)).Int("delivered", delivered).Msg("Course announced")
}

// QueueDepth returns the number of pending announcements.
func (a *Announcer) QueueDepth() int {
	return len(a.queue)
}
