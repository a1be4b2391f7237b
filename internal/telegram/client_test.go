package telegram

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukaszraczylo/coursebot/internal/dialog"
)

// fakeAPI emulates the Bot API: records every call and replays canned
// results per method.
type fakeAPI struct {
	mu      sync.Mutex
	calls   []apiCall
	results map[string]any
	fail    map[string]string
	srv     *httptest.Server
}

type apiCall struct {
	method string
	body   map[string]any
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{
		results: make(map[string]any),
		fail:    make(map[string]string),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Path is /bot<token>/<method>
		method := r.URL.Path[len("/bottest-token/"):]

		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var body map[string]any
		if len(raw) > 0 {
			require.NoError(t, json.Unmarshal(raw, &body))
		}

		f.mu.Lock()
		f.calls = append(f.calls, apiCall{method: method, body: body})
		desc, failing := f.fail[method]
		result := f.results[method]
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if failing {
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "description": desc})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeAPI) client() *Client {
	return NewClient("test-token", WithBaseURL(f.srv.URL))
}

func (f *fakeAPI) callsTo(method string) []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []apiCall
	for _, c := range f.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeAPI) lastText(method string) string {
	calls := f.callsTo(method)
	if len(calls) == 0 {
		return ""
	}
	text, _ := calls[len(calls)-1].body["text"].(string)
	return text
}

func TestSendMessage(t *testing.T) {
	api := newFakeAPI(t)
	c := api.client()

	err := c.SendMessage(context.Background(), 42, "hello")
	require.NoError(t, err)

	calls := api.callsTo("sendMessage")
	require.Len(t, calls, 1)
	assert.Equal(t, float64(42), calls[0].body["chat_id"])
	assert.Equal(t, "hello", calls[0].body["text"])
	assert.NotContains(t, calls[0].body, "reply_markup")
}

func TestSendMenuRendersInlineKeyboard(t *testing.T) {
	api := newFakeAPI(t)
	c := api.client()

	choices := []dialog.Choice{
		{Label: "Mathematics", Token: "math"},
		{Label: "Sciences", Token: "science"},
	}
	err := c.SendMenu(context.Background(), 42, "Pick a category", choices)
	require.NoError(t, err)

	calls := api.callsTo("sendMessage")
	require.Len(t, calls, 1)

	markup, ok := calls[0].body["reply_markup"].(map[string]any)
	require.True(t, ok)
	rows, ok := markup["inline_keyboard"].([]any)
	require.True(t, ok)
	require.Len(t, rows, 2)

	row0 := rows[0].([]any)[0].(map[string]any)
	assert.Equal(t, "Mathematics", row0["text"])
	assert.Equal(t, "math", row0["callback_data"])
}

func TestSendMenuWithoutChoicesFallsBackToPlainText(t *testing.T) {
	api := newFakeAPI(t)
	c := api.client()

	require.NoError(t, c.SendMenu(context.Background(), 42, "plain", nil))

	calls := api.callsTo("sendMessage")
	require.Len(t, calls, 1)
	assert.NotContains(t, calls[0].body, "reply_markup")
}

func TestGetUpdates(t *testing.T) {
	api := newFakeAPI(t)
	api.results["getUpdates"] = []map[string]any{
		{"update_id": 7, "message": map[string]any{"message_id": 1, "text": "/start", "chat": map[string]any{"id": 42}}},
		{"update_id": 8, "message": map[string]any{"message_id": 2, "text": "hi", "chat": map[string]any{"id": 42}}},
	}
	c := api.client()

	updates, err := c.GetUpdates(context.Background(), 7, 1)
	require.NoError(t, err)
	require.Len(t, updates, 2)
	assert.Equal(t, int64(7), updates[0].UpdateID)
	assert.Equal(t, "/start", updates[0].Message.Text)
	assert.Equal(t, int64(42), updates[1].Message.Chat.ID)

	calls := api.callsTo("getUpdates")
	require.Len(t, calls, 1)
	assert.Equal(t, float64(7), calls[0].body["offset"])
	assert.Equal(t, float64(1), calls[0].body["timeout"])
}

func TestAPIErrorSurfacesDescription(t *testing.T) {
	api := newFakeAPI(t)
	api.fail["sendMessage"] = "Bad Request: chat not found"
	c := api.client()

	err := c.SendMessage(context.Background(), 42, "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestAnswerCallback(t *testing.T) {
	api := newFakeAPI(t)
	c := api.client()

	require.NoError(t, c.AnswerCallback(context.Background(), "cb-1"))

	calls := api.callsTo("answerCallbackQuery")
	require.Len(t, calls, 1)
	assert.Equal(t, "cb-1", calls[0].body["callback_query_id"])
}
