package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukaszraczylo/coursebot/internal/dialog"
	"github.com/lukaszraczylo/coursebot/pkg/models"
)

// memCatalog is an in-memory dialog.Catalog for transport tests.
type memCatalog struct {
	mu      sync.Mutex
	courses []models.Course
	nextKey int
}

func (m *memCatalog) List(ctx context.Context) ([]models.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Course, len(m.courses))
	copy(out, m.courses)
	return out, nil
}

func (m *memCatalog) Append(ctx context.Context, name, category, link string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextKey++
	key := fmt.Sprintf("k%d", m.nextKey)
	m.courses = append(m.courses, models.Course{Key: key, Name: name, Category: category, Link: link})
	return key, nil
}

func (m *memCatalog) UpdateField(ctx context.Context, key, field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.courses {
		if m.courses[i].Key == key {
			switch field {
			case "name":
				m.courses[i].Name = value
			case "link":
				m.courses[i].Link = value
			case "category":
				m.courses[i].Category = value
			}
			return nil
		}
	}
	return errors.New("not found")
}

func (m *memCatalog) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.courses {
		if m.courses[i].Key == key {
			m.courses = append(m.courses[:i], m.courses[i+1:]...)
			return nil
		}
	}
	return errors.New("not found")
}

type memRegistry struct {
	mu    sync.Mutex
	added []int64
	err   error
}

func (m *memRegistry) Add(ctx context.Context, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.added = append(m.added, chatID)
	return nil
}

func testBot(t *testing.T) (*Bot, *fakeAPI, *memCatalog, *memRegistry) {
	t.Helper()
	api := newFakeAPI(t)
	catalog := &memCatalog{}
	registry := &memRegistry{}
	engine := dialog.New(dialog.Config{Catalog: catalog})
	bot := NewBot(api.client(), engine, registry, 1)
	t.Cleanup(bot.Close)
	return bot, api, catalog, registry
}

var updateSeq int64

func textUpdate(chatID int64, text string) Update {
	updateSeq++
	return Update{
		UpdateID: updateSeq,
		Message:  &Message{MessageID: updateSeq, Text: text, Chat: Chat{ID: chatID}},
	}
}

func callbackUpdate(chatID int64, data string) Update {
	updateSeq++
	return Update{
		UpdateID: updateSeq,
		CallbackQuery: &CallbackQuery{
			ID:      fmt.Sprintf("cb%d", updateSeq),
			Data:    data,
			From:    User{ID: chatID},
			Message: &Message{MessageID: updateSeq, Chat: Chat{ID: chatID}},
		},
	}
}

// run pushes updates through the dispatcher and waits for the chat workers
// to drain.
func run(bot *Bot, updates ...Update) {
	ctx := context.Background()
	for _, u := range updates {
		bot.Dispatch(ctx, u)
	}
	bot.Close()
}

func TestStartRegistersRecipient(t *testing.T) {
	bot, api, _, registry := testBot(t)

	run(bot, textUpdate(42, "/start"))

	assert.Equal(t, []int64{42}, registry.added)
	assert.Contains(t, api.lastText("sendMessage"), "/add")
}

func TestCreateFlowEndToEnd(t *testing.T) {
	bot, api, catalog, _ := testBot(t)

	run(bot,
		textUpdate(42, "/add"),
		textUpdate(42, "Cálculo I"),
		callbackUpdate(42, "math"),
		textUpdate(42, "http://example.com/calc"),
	)

	require.Len(t, catalog.courses, 1)
	assert.Equal(t, "Cálculo I", catalog.courses[0].Name)
	assert.Equal(t, "math", catalog.courses[0].Category)
	assert.Equal(t, "http://example.com/calc", catalog.courses[0].Link)

	// Button press was acknowledged
	assert.Len(t, api.callsTo("answerCallbackQuery"), 1)
	assert.Contains(t, api.lastText("sendMessage"), "registered")
}

// TestCategoryMenuCarriesButtons verifies the category prompt goes out as an
// inline keyboard, not plain text.
func TestCategoryMenuCarriesButtons(t *testing.T) {
	bot, api, _, _ := testBot(t)

	run(bot,
		textUpdate(42, "/add"),
		textUpdate(42, "Cálculo I"),
	)

	calls := api.callsTo("sendMessage")
	require.NotEmpty(t, calls)
	markup, ok := calls[len(calls)-1].body["reply_markup"].(map[string]any)
	require.True(t, ok, "category prompt should carry an inline keyboard")
	rows := markup["inline_keyboard"].([]any)
	assert.Len(t, rows, 5)
}

func TestCommandWithBotSuffix(t *testing.T) {
	bot, _, catalog, _ := testBot(t)

	run(bot,
		textUpdate(42, "/add@coursebot"),
		textUpdate(42, "Cálculo I"),
		textUpdate(42, "1"),
		textUpdate(42, "http://example.com/calc"),
	)

	require.Len(t, catalog.courses, 1)
	assert.Equal(t, "math", catalog.courses[0].Category)
}

func TestCourseLookup(t *testing.T) {
	bot, api, catalog, _ := testBot(t)
	catalog.courses = []models.Course{
		{Key: "k1", Name: "Química Orgânica", Category: "science", Link: "http://example.com/quim"},
	}

	run(bot, textUpdate(42, "/course quimica organica"))

	text := api.lastText("sendMessage")
	assert.Contains(t, text, "Maybe you meant:")
	assert.Contains(t, text, "Química Orgânica: http://example.com/quim")
}

func TestCourseWithoutArgsShowsUsage(t *testing.T) {
	bot, api, _, _ := testBot(t)

	run(bot, textUpdate(42, "/course"))

	assert.Equal(t, "Usage: /course <name>", api.lastText("sendMessage"))
}

func TestUnknownCommand(t *testing.T) {
	bot, api, _, _ := testBot(t)

	run(bot, textUpdate(42, "/frobnicate"))

	text := api.lastText("sendMessage")
	assert.Contains(t, text, "Unknown command /frobnicate")
	assert.Contains(t, text, "/help")
}

func TestFreeTextWithoutSessionHints(t *testing.T) {
	bot, api, _, _ := testBot(t)

	run(bot, textUpdate(42, "hello there"))

	assert.Contains(t, api.lastText("sendMessage"), "/help")
}

func TestEmptyMessageIgnored(t *testing.T) {
	bot, api, _, _ := testBot(t)

	run(bot, textUpdate(42, "   "))

	assert.Empty(t, api.callsTo("sendMessage"))
}

// TestPerChatOrdering floods one chat with a full create flow interleaved
// with another chat's traffic and verifies the flow still commits, which it
// only can if each chat's updates ran in arrival order.
func TestPerChatOrdering(t *testing.T) {
	bot, _, catalog, _ := testBot(t)

	var updates []Update
	updates = append(updates, textUpdate(1, "/add"))
	updates = append(updates, textUpdate(2, "/add"))
	updates = append(updates, textUpdate(1, "Cálculo I"))
	updates = append(updates, textUpdate(2, "Redação Nota 1000"))
	updates = append(updates, textUpdate(1, "math"))
	updates = append(updates, textUpdate(2, "writing"))
	updates = append(updates, textUpdate(1, "http://example.com/a"))
	updates = append(updates, textUpdate(2, "http://example.com/b"))

	run(bot, updates...)

	require.Len(t, catalog.courses, 2)
	names := []string{catalog.courses[0].Name, catalog.courses[1].Name}
	assert.Contains(t, names, "Cálculo I")
	assert.Contains(t, names, "Redação Nota 1000")
}

func TestDispatchAfterCloseIsDropped(t *testing.T) {
	bot, api, _, _ := testBot(t)

	bot.Close()
	bot.Dispatch(context.Background(), textUpdate(42, "/help"))

	assert.Empty(t, api.callsTo("sendMessage"))
}

func TestWebhookDeliversUpdate(t *testing.T) {
	bot, api, _, registry := testBot(t)
	srv := NewWebhookServer(bot, "127.0.0.1:0")

	body, err := json.Marshal(textUpdate(42, "/start"))
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/telegram/webhook", strings.NewReader(string(body)))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, 200, rec.Code)

	bot.Close()
	assert.Equal(t, []int64{42}, registry.added)
	assert.Contains(t, api.lastText("sendMessage"), "/add")
}

func TestWebhookRejectsMalformedPayload(t *testing.T) {
	bot, _, _, _ := testBot(t)
	srv := NewWebhookServer(bot, "127.0.0.1:0")

	req := httptest.NewRequest("POST", "/telegram/webhook", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, 400, rec.Code)
}

func TestHealthz(t *testing.T) {
	bot, _, _, _ := testBot(t)
	srv := NewWebhookServer(bot, "127.0.0.1:0")

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}
