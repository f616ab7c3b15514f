package models

import (
	"time"

	"github.com/google/uuid"
)

// Message directions. "to_company" is customer → company, "to_client" is
// company → customer.
const (
	DirectionToCompany = "to_company"
	DirectionToClient  = "to_client"
)

// Conversation is the full message history with one customer, keyed by the
// external chat ID. Created on first ingestion of an ID; deleted and recreated
// wholesale on forced reprocessing.
type Conversation struct {
	ID               uuid.UUID  `db:"id"                json:"id"`
	ChatID           string     `db:"chat_id"           json:"chat_id"`
	CustomerName     *string    `db:"customer_name"     json:"customer_name,omitempty"`
	TotalMessages    int        `db:"total_messages"    json:"total_messages"`
	CustomerMessages int        `db:"customer_messages" json:"customer_messages"`
	AgentMessages    int        `db:"agent_messages"    json:"agent_messages"`
	FirstMessageAt   *time.Time `db:"first_message_at"  json:"first_message_at,omitempty"`
	LastMessageAt    *time.Time `db:"last_message_at"   json:"last_message_at,omitempty"`
	Topics           []string   `db:"topics"            json:"topics,omitempty"`
	CreatedAt        time.Time  `db:"created_at"        json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"        json:"updated_at"`
}

// Message is a single chat message. Immutable once persisted.
type Message struct {
	ID             uuid.UUID `db:"id"              json:"id"`
	ConversationID uuid.UUID `db:"conversation_id" json:"conversation_id"`
	ChatID         string    `db:"chat_id"         json:"chat_id"`
	Content        string    `db:"content"         json:"content"`
	Direction      string    `db:"direction"       json:"direction"`
	SentAt         time.Time `db:"sent_at"         json:"sent_at"`
	CreatedAt      time.Time `db:"created_at"      json:"created_at"`
}

// ProcessedChat records that an external chat ID has been ingested, making
// re-ingestion idempotent unless forced.
type ProcessedChat struct {
	ID           uuid.UUID `db:"id"            json:"id"`
	ChatID       string    `db:"chat_id"       json:"chat_id"`
	MessageCount int       `db:"message_count" json:"message_count"`
	ProcessedAt  time.Time `db:"processed_at"  json:"processed_at"`
}
