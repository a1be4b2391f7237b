// Package dialog implements the multi-turn dialogue engine for coursebot:
// per-chat sessions, the create/edit/delete flows, and the stateless lookup
// and listing paths.
package dialog

import "time"

// Flow identifies one conversational intent.
type Flow string

const (
	FlowCreate Flow = "create"
	FlowEdit   Flow = "edit"
	FlowDelete Flow = "delete"
)

// State is one step of a flow waiting for user input. Terminal outcomes
// (committed, cancelled, not found) have no state: the session is removed
// and its draft discarded.
type State string

const (
	// create flow
	StateAwaitingName     State = "awaiting_name"
	StateAwaitingCategory State = "awaiting_category"
	StateAwaitingLink     State = "awaiting_link"

	// edit and delete flows
	StateAwaitingTargetName  State = "awaiting_target_name"
	StateAwaitingFieldChoice State = "awaiting_field_choice"
	StateAwaitingNewValue    State = "awaiting_new_value"
)

// Draft holds the in-progress field values of a create flow. It lives only
// inside a session; partial drafts never reach the store.
type Draft struct {
	Name     string
	Category string
	Link     string
}

// Target holds the resolved record reference of an edit or delete flow.
type Target struct {
	Key   string
	Name  string
	Field string
}

// Session is the flow state plus draft for one chat. A chat has at most one
// session; starting a new flow replaces any incomplete one.
type Session struct {
	ChatID       int64
	Flow         Flow
	State        State
	Draft        Draft
	Target       Target
	LastActivity time.Time
}
