package telegram

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lukaszraczylo/coursebot/internal/dialog"
)

const helpText = `I manage the course catalog. Commands:

/add - add a new course
/edit - change a course's name or link
/remove - delete a course
/course <name> - look up a course link
/list - show the whole catalog
/cancel - abandon the current operation`

const expiredText = "Your pending operation timed out and was discarded. Start over whenever you like."

// RecipientRegistry records chats that should receive announcements.
type RecipientRegistry interface {
	Add(ctx context.Context, chatID int64) error
}

// Bot routes inbound updates to the dialogue engine. Updates for the same
// chat are processed strictly in arrival order on a dedicated worker; chats
// never block each other.
type Bot struct {
	client      *Client
	engine      *dialog.Engine
	recipients  RecipientRegistry
	pollTimeout int

	mu     sync.Mutex
	queues map[int64]chan queuedUpdate
	closed bool
	wg     sync.WaitGroup
}

type queuedUpdate struct {
	ctx    context.Context
	update Update
}

// NewBot wires the transport to the engine.
func NewBot(client *Client, engine *dialog.Engine, recipients RecipientRegistry, pollTimeoutSec int) *Bot {
	if pollTimeoutSec <= 0 {
		pollTimeoutSec = 30
	}
	return &Bot{
		client:      client,
		engine:      engine,
		recipients:  recipients,
		pollTimeout: pollTimeoutSec,
		queues:      make(map[int64]chan queuedUpdate),
	}
}

// RunPolling consumes updates via getUpdates until ctx is done.
func (b *Bot) RunPolling(ctx context.Context) error {
	defer b.Close()

	var offset int64
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		updates, err := b.client.GetUpdates(ctx, offset, b.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn().Err(err).Msg("getUpdates failed, backing off")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(3 * time.Second):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			b.Dispatch(ctx, u)
		}
	}
}

// Dispatch hands an update to its chat's worker, spawning the worker on
// first contact. Updates without a chat are dropped.
func (b *Bot) Dispatch(ctx context.Context, u Update) {
	chatID, ok := chatIDOf(u)
	if !ok {
		log.Debug().Int64("updateId", u.UpdateID).Msg("Update has no chat, ignoring")
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	q, exists := b.queues[chatID]
	if !exists {
		q = make(chan queuedUpdate, 64)
		b.queues[chatID] = q
		b.wg.Add(1)
		go b.chatWorker(chatID, q)
	}
	b.mu.Unlock()

	select {
	case q <- queuedUpdate{ctx: ctx, update: u}:
	default:
		log.Warn().Int64("chatId", chatID).Msg("Chat queue full, dropping update")
	}
}

// Close stops all chat workers and waits for in-flight updates.
func (b *Bot) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, q := range b.queues {
		close(q)
	}
	b.mu.Unlock()
	b.wg.Wait()
}

func (b *Bot) chatWorker(chatID int64, q <-chan queuedUpdate) {
	defer b.wg.Done()
	for qu := range q {
		b.handleUpdate(qu.ctx, chatID, qu.update)
	}
}

func chatIDOf(u Update) (int64, bool) {
	switch {
	case u.Message != nil:
		return u.Message.Chat.ID, true
	case u.CallbackQuery != nil && u.CallbackQuery.Message != nil:
		return u.CallbackQuery.Message.Chat.ID, true
	case u.CallbackQuery != nil:
		return u.CallbackQuery.From.ID, true
	default:
		return 0, false
	}
}

func (b *Bot) handleUpdate(ctx context.Context, chatID int64, u Update) {
	switch {
	case u.CallbackQuery != nil:
		if err := b.client.AnswerCallback(ctx, u.CallbackQuery.ID); err != nil {
			log.Debug().Err(err).Int64("chatId", chatID).Msg("Failed to answer callback")
		}
		b.send(ctx, chatID, b.engine.HandleInput(ctx, chatID, u.CallbackQuery.Data))

	case u.Message != nil:
		text := strings.TrimSpace(u.Message.Text)
		if text == "" {
			return
		}
		if strings.HasPrefix(text, "/") {
			b.send(ctx, chatID, b.command(ctx, chatID, text))
			return
		}
		b.send(ctx, chatID, b.engine.HandleInput(ctx, chatID, text))
	}
}

func (b *Bot) command(ctx context.Context, chatID int64, text string) dialog.Reply {
	fields := strings.Fields(text)
	cmd := strings.ToLower(fields[0])
	// Group chats address commands as /cmd@botname
	if i := strings.Index(cmd, "@"); i >= 0 {
		cmd = cmd[:i]
	}
	args := fields[1:]

	switch cmd {
	case "/start":
		b.register(ctx, chatID)
		return dialog.Reply{Text: "Hello! " + helpText}
	case "/help":
		return dialog.Reply{Text: helpText}
	case "/add":
		return b.engine.StartCreate(chatID)
	case "/edit":
		return b.engine.StartEdit(chatID)
	case "/remove", "/delete":
		return b.engine.StartDelete(chatID)
	case "/cancel":
		return b.engine.Cancel(chatID)
	case "/course":
		if len(args) == 0 {
			return dialog.Reply{Text: "Usage: /course <name>"}
		}
		return b.engine.Lookup(ctx, strings.Join(args, " "))
	case "/list":
		return b.engine.ListAll(ctx)
	default:
		return dialog.Reply{Text: fmt.Sprintf("Unknown command %s. Try /help.", cmd)}
	}
}

func (b *Bot) register(ctx context.Context, chatID int64) {
	if b.recipients == nil {
		return
	}
	if err := b.recipients.Add(ctx, chatID); err != nil {
		log.Warn().Err(err).Int64("chatId", chatID).Msg("Failed to register recipient")
	}
}

func (b *Bot) send(ctx context.Context, chatID int64, reply dialog.Reply) {
	if reply.Text == "" {
		return
	}
	var err error
	if len(reply.Choices) > 0 {
		err = b.client.SendMenu(ctx, chatID, reply.Text, reply.Choices)
	} else {
		err = b.client.SendMessage(ctx, chatID, reply.Text)
	}
	if err != nil {
		log.Warn().Err(err).Int64("chatId", chatID).Msg("Failed to send reply")
	}
}

// NotifyExpired tells a chat its idle session was discarded. Wired as the
// session manager's expiry callback.
func (b *Bot) NotifyExpired(chatID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := b.client.SendMessage(ctx, chatID, expiredText); err != nil {
		log.Debug().Err(err).Int64("chatId", chatID).Msg("Failed to send expiry notice")
	}
}
