package dialog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/lukaszraczylo/coursebot/internal/categories"
	"github.com/lukaszraczylo/coursebot/internal/db/sqlite"
	"github.com/lukaszraczylo/coursebot/pkg/fuzzy"
	"github.com/lukaszraczylo/coursebot/pkg/models"
)

// Catalog is the narrow store contract the engine depends on. Every
// resolution re-fetches List; the engine holds no catalog cache.
type Catalog interface {
	List(ctx context.Context) ([]models.Course, error)
	Append(ctx context.Context, name, category, link string) (string, error)
	UpdateField(ctx context.Context, key, field, value string) error
	Remove(ctx context.Context, key string) error
}

// Announcer receives a committed course for best-effort broadcast. Announce
// must not block; delivery failures never reach the initiating user.
type Announcer interface {
	Announce(course models.Course)
}

// Reply is the engine's outbound unit: response text plus an optional
// fixed-choice menu. The transport decides how to render the choices.
type Reply struct {
	Text    string
	Choices []Choice
}

// Choice is one fixed menu option. Token is what comes back when the user
// picks it, whether tapped as a button or typed as text.
type Choice struct {
	Label string
	Token string
}

// Config wires an Engine.
type Config struct {
	Catalog    Catalog
	Categories *categories.Registry
	Sessions   *Manager
	Announcer  Announcer // optional
	TopN       int
	Threshold  int
}

// Engine routes each inbound message to the chat's current flow state,
// validates it, and advances or terminates the flow. One store mutation at
// most per step, always on the flow's final step.
type Engine struct {
	catalog    Catalog
	categories *categories.Registry
	sessions   *Manager
	announcer  Announcer
	topN       int
	threshold  int
}

// New creates a dialogue engine.
func New(cfg Config) *Engine {
	if cfg.Categories == nil {
		cfg.Categories = categories.Default()
	}
	if cfg.Sessions == nil {
		cfg.Sessions = NewManager(0)
	}
	if cfg.TopN <= 0 {
		cfg.TopN = fuzzy.DefaultTopN
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = fuzzy.DefaultThreshold
	}
	return &Engine{
		catalog:    cfg.Catalog,
		categories: cfg.Categories,
		sessions:   cfg.Sessions,
		announcer:  cfg.Announcer,
		topN:       cfg.TopN,
		threshold:  cfg.Threshold,
	}
}

const (
	msgAskName          = "What is the course name?"
	msgAskLink          = "Send the course link."
	msgAskEditTarget    = "Which course do you want to edit?"
	msgAskDeleteTarget  = "Which course do you want to remove?"
	msgCancelled        = "Okay, cancelled."
	msgNothingToCancel  = "There is nothing to cancel."
	msgEmptyValue       = "I got an empty value, so I cancelled the edit."
	msgStoreUnavailable = "The catalog is unavailable right now. Please try again later."
	msgNoCourses        = "No courses registered yet."
	msgUnexpectedInput  = "I wasn't expecting that. Use /help to see what I can do."
)

// StartCreate begins the create flow for a chat.
func (e *Engine) StartCreate(chatID int64) Reply {
	e.sessions.Begin(chatID, FlowCreate, StateAwaitingName)
	return Reply{Text: msgAskName}
}

// StartEdit begins the edit flow for a chat.
func (e *Engine) StartEdit(chatID int64) Reply {
	e.sessions.Begin(chatID, FlowEdit, StateAwaitingTargetName)
	return Reply{Text: msgAskEditTarget}
}

// StartDelete begins the delete flow for a chat.
func (e *Engine) StartDelete(chatID int64) Reply {
	e.sessions.Begin(chatID, FlowDelete, StateAwaitingTargetName)
	return Reply{Text: msgAskDeleteTarget}
}

// Cancel discards the chat's session unconditionally. Valid from any
// non-terminal state.
func (e *Engine) Cancel(chatID int64) Reply {
	if _, ok := e.sessions.Get(chatID); !ok {
		return Reply{Text: msgNothingToCancel}
	}
	e.sessions.End(chatID)
	return Reply{Text: msgCancelled}
}

// HandleInput routes one inbound token (free text or a menu selection) to
// the chat's current state. Without an active session it only hints at the
// command surface.
func (e *Engine) HandleInput(ctx context.Context, chatID int64, input string) Reply {
	sess, ok := e.sessions.Get(chatID)
	if !ok {
		return Reply{Text: msgUnexpectedInput}
	}
	e.sessions.Touch(chatID)

	switch sess.State {
	case StateAwaitingName:
		return e.handleName(sess, input)
	case StateAwaitingCategory:
		return e.handleCategory(sess, input)
	case StateAwaitingLink:
		return e.handleLink(ctx, sess, input)
	case StateAwaitingTargetName:
		return e.handleTargetName(ctx, sess, input)
	case StateAwaitingFieldChoice:
		return e.handleFieldChoice(sess, input)
	case StateAwaitingNewValue:
		return e.handleNewValue(ctx, sess, input)
	default:
		// Unreachable unless a new state is added without a handler
		e.sessions.End(chatID)
		return Reply{Text: msgUnexpectedInput}
	}
}

func (e *Engine) handleName(sess *Session, input string) Reply {
	name := strings.TrimSpace(input)
	if name == "" {
		return Reply{Text: "The name cannot be empty. " + msgAskName}
	}
	sess.Draft.Name = name
	sess.State = StateAwaitingCategory
	return e.categoryPrompt("")
}

func (e *Engine) handleCategory(sess *Session, input string) Reply {
	cat, ok := e.categories.Parse(input)
	if !ok {
		return e.categoryPrompt("I don't know that category. ")
	}
	sess.Draft.Category = cat.Tag
	sess.State = StateAwaitingLink
	return Reply{Text: msgAskLink}
}

func (e *Engine) handleLink(ctx context.Context, sess *Session, input string) Reply {
	link := strings.TrimSpace(input)
	if link == "" {
		return Reply{Text: "The link cannot be empty. " + msgAskLink}
	}
	sess.Draft.Link = link

	key, err := e.catalog.Append(ctx, sess.Draft.Name, sess.Draft.Category, sess.Draft.Link)
	if err != nil {
		log.Warn().Err(err).Int64("chatId", sess.ChatID).Msg("Catalog append failed")
		return Reply{Text: msgStoreUnavailable}
	}

	course := models.Course{
		Key:      key,
		Name:     sess.Draft.Name,
		Category: sess.Draft.Category,
		Link:     sess.Draft.Link,
	}
	log.Info().Str("key", key).Str("name", course.Name).Str("category", course.Category).Msg("Course registered")

	if e.announcer != nil {
		e.announcer.Announce(course)
	}

	e.sessions.End(sess.ChatID)
	return Reply{Text: fmt.Sprintf("Course %q registered under %s.", course.Name, e.categoryTitle(course.Category))}
}

func (e *Engine) handleTargetName(ctx context.Context, sess *Session, input string) Reply {
	courses, err := e.catalog.List(ctx)
	if err != nil {
		log.Warn().Err(err).Int64("chatId", sess.ChatID).Msg("Catalog list failed")
		return Reply{Text: msgStoreUnavailable}
	}

	match, ok := e.resolveOne(input, courses)
	if !ok {
		e.sessions.End(sess.ChatID)
		return Reply{Text: fmt.Sprintf("No course similar to %q found.", strings.TrimSpace(input))}
	}
	sess.Target.Key = match.Key
	sess.Target.Name = match.Name

	if sess.Flow == FlowDelete {
		return e.commitDelete(ctx, sess)
	}

	sess.State = StateAwaitingFieldChoice
	return Reply{
		Text: fmt.Sprintf("Editing %q. Which field do you want to change?", match.Name),
		Choices: []Choice{
			{Label: "Name", Token: "name"},
			{Label: "Link", Token: "link"},
		},
	}
}

func (e *Engine) commitDelete(ctx context.Context, sess *Session) Reply {
	err := e.catalog.Remove(ctx, sess.Target.Key)
	if errors.Is(err, sqlite.ErrNotFound) {
		e.sessions.End(sess.ChatID)
		return Reply{Text: fmt.Sprintf("Course %q is already gone.", sess.Target.Name)}
	}
	if err != nil {
		log.Warn().Err(err).Str("key", sess.Target.Key).Msg("Catalog remove failed")
		return Reply{Text: msgStoreUnavailable}
	}

	log.Info().Str("key", sess.Target.Key).Str("name", sess.Target.Name).Msg("Course removed")
	e.sessions.End(sess.ChatID)
	return Reply{Text: fmt.Sprintf("Course %q removed.", sess.Target.Name)}
}

func (e *Engine) handleFieldChoice(sess *Session, input string) Reply {
	field := strings.ToLower(strings.TrimSpace(input))
	if field != "name" && field != "link" {
		return Reply{
			Text: `Reply with "name" or "link".`,
			Choices: []Choice{
				{Label: "Name", Token: "name"},
				{Label: "Link", Token: "link"},
			},
		}
	}
	sess.Target.Field = field
	sess.State = StateAwaitingNewValue
	return Reply{Text: fmt.Sprintf("Send the new %s for %q.", field, sess.Target.Name)}
}

func (e *Engine) handleNewValue(ctx context.Context, sess *Session, input string) Reply {
	value := strings.TrimSpace(input)
	if value == "" {
		// Fatal to the flow, not retried
		e.sessions.End(sess.ChatID)
		return Reply{Text: msgEmptyValue}
	}

	err := e.catalog.UpdateField(ctx, sess.Target.Key, sess.Target.Field, value)
	if errors.Is(err, sqlite.ErrNotFound) {
		e.sessions.End(sess.ChatID)
		return Reply{Text: fmt.Sprintf("Course %q no longer exists.", sess.Target.Name)}
	}
	if err != nil {
		log.Warn().Err(err).Str("key", sess.Target.Key).Msg("Catalog update failed")
		return Reply{Text: msgStoreUnavailable}
	}

	log.Info().Str("key", sess.Target.Key).Str("field", sess.Target.Field).Msg("Course updated")
	e.sessions.End(sess.ChatID)
	return Reply{Text: fmt.Sprintf("Course %q updated.", sess.Target.Name)}
}

// Lookup is the stateless one-shot search path: no session, fresh snapshot,
// best match or "not found".
func (e *Engine) Lookup(ctx context.Context, query string) Reply {
	courses, err := e.catalog.List(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Catalog list failed")
		return Reply{Text: msgStoreUnavailable}
	}

	matches := fuzzy.Resolve(query, candidatesOf(courses), e.topN, e.threshold)
	if len(matches) == 0 {
		return Reply{Text: fmt.Sprintf("No course similar to %q found.", strings.TrimSpace(query))}
	}

	best := matches[0]
	for _, course := range courses {
		if course.Key == best.Key {
			return Reply{Text: fmt.Sprintf("Maybe you meant:\n\n%s: %s", course.Name, course.Link)}
		}
	}
	// Key vanished between list and reply assembly; treat as a miss
	return Reply{Text: fmt.Sprintf("No course similar to %q found.", strings.TrimSpace(query))}
}

// ListAll returns the whole catalog grouped by category, in registry order.
func (e *Engine) ListAll(ctx context.Context) Reply {
	courses, err := e.catalog.List(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Catalog list failed")
		return Reply{Text: msgStoreUnavailable}
	}
	if len(courses) == 0 {
		return Reply{Text: msgNoCourses}
	}

	byCategory := make(map[string][]models.Course)
	for _, course := range courses {
		byCategory[course.Category] = append(byCategory[course.Category], course)
	}

	var b strings.Builder
	for _, tag := range e.categories.Tags() {
		appendGroup(&b, e.categoryTitle(tag), byCategory[tag])
		delete(byCategory, tag)
	}
	// Courses whose tag left the registry still show up, under the raw tag
	for _, course := range courses {
		if group, ok := byCategory[course.Category]; ok {
			appendGroup(&b, course.Category, group)
			delete(byCategory, course.Category)
		}
	}
	return Reply{Text: strings.TrimRight(b.String(), "\n")}
}

func appendGroup(b *strings.Builder, title string, group []models.Course) {
	if len(group) == 0 {
		return
	}
	fmt.Fprintf(b, "%s\n", title)
	for _, course := range group {
		fmt.Fprintf(b, "  %s — %s\n", course.Name, course.Link)
	}
	b.WriteString("\n")
}

// resolveOne resolves free text to a single catalog record, or reports that
// nothing scored above the threshold.
func (e *Engine) resolveOne(query string, courses []models.Course) (fuzzy.Match, bool) {
	matches := fuzzy.Resolve(query, candidatesOf(courses), 1, e.threshold)
	if len(matches) == 0 {
		return fuzzy.Match{}, false
	}
	return matches[0], true
}

func candidatesOf(courses []models.Course) []fuzzy.Candidate {
	candidates := make([]fuzzy.Candidate, len(courses))
	for i, course := range courses {
		candidates[i] = fuzzy.Candidate{Key: course.Key, Name: course.Name}
	}
	return candidates
}

func (e *Engine) categoryPrompt(prefix string) Reply {
	choices := make([]Choice, 0, e.categories.Len())
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteString("Pick a category (reply with a number or tag):\n")
	for i, tag := range e.categories.Tags() {
		cat, _ := e.categories.Get(tag)
		fmt.Fprintf(&b, "%d. %s\n", i+1, cat.Title)
		choices = append(choices, Choice{Label: cat.Title, Token: cat.Tag})
	}
	return Reply{Text: strings.TrimRight(b.String(), "\n"), Choices: choices}
}

func (e *Engine) categoryTitle(tag string) string {
	if cat, ok := e.categories.Get(tag); ok {
		return cat.Title
	}
	return tag
}
