// Package telegram implements the chat transport for coursebot: a minimal
// Bot API client, long-polling and webhook ingestion, and per-chat ordered
// dispatch into the dialogue engine.
package telegram

// Update is one inbound Bot API update. Only the fields coursebot consumes
// are mapped.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

// Message is an inbound chat message.
type Message struct {
	MessageID int64  `json:"message_id"`
	Text      string `json:"text,omitempty"`
	Chat      Chat   `json:"chat"`
	From      *User  `json:"from,omitempty"`
}

// Chat identifies the conversation; its id is the session key.
type Chat struct {
	ID int64 `json:"id"`
}

// User is the sender of a message or callback.
type User struct {
	ID int64 `json:"id"`
}

// CallbackQuery is a button press on an inline keyboard. Data carries the
// selection token, which the engine treats exactly like typed text.
type CallbackQuery struct {
	ID      string   `json:"id"`
	Data    string   `json:"data,omitempty"`
	From    User     `json:"from"`
	Message *Message `json:"message,omitempty"`
}

// InlineKeyboardButton is one tappable choice.
type InlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

// InlineKeyboardMarkup renders fixed choices as buttons.
type InlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

type sendMessageRequest struct {
	ChatID      int64                 `json:"chat_id"`
	Text        string                `json:"text"`
	ReplyMarkup *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

type getUpdatesRequest struct {
	Offset  int64 `json:"offset"`
	Timeout int   `json:"timeout"`
}

type answerCallbackRequest struct {
	CallbackQueryID string `json:"callback_query_id"`
}

type setWebhookRequest struct {
	URL string `json:"url"`
}
