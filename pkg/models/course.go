// Package models contains domain models for coursebot.
package models

// Course is one catalog entry. The key is assigned by the store on append and
// is opaque to everything else; name, category and link are always populated
// once a record reaches the store.
type Course struct {
	Key      string `db:"key" json:"key"`
	Name     string `db:"name" json:"name"`
	Category string `db:"category" json:"category"`
	Link     string `db:"link" json:"link"`
}

// Recipient is a chat known to the bot. Every chat that has talked to the bot
// is registered here and receives new-course announcements.
type Recipient struct {
	ChatID         int64  `db:"chat_id" json:"chat_id"`
	FirstSeen      string `db:"first_seen" json:"first_seen"`
	FirstSeenEpoch int64  `db:"first_seen_epoch" json:"first_seen_epoch"`
}
