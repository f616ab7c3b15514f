package ingest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/powerpulse/pulsedesk/internal/scoring"
	"github.com/powerpulse/pulsedesk/pkg/models"
)

// autoresponseMarker identifies the boilerplate autoresponse that is filtered
// out exactly. No other autoresponse heuristics are applied.
const autoresponseMarker = "*977#"

// timestampFallbackLayout is tried when a timestamp is not valid RFC 3339.
const timestampFallbackLayout = "2006-01-02 15:04:05"

// rawMessage is one undecoded message object from the payload.
type rawMessage map[string]any

// Stats counts what normalization discarded or repaired.
type Stats struct {
	DroppedMessages       int
	FilteredAutoresponses int
	LossyTimestamps       int
}

// ConversationData is one normalized conversation with its messages, pending
// per-day analysis units and the matching scoring units.
type ConversationData struct {
	Conversation *models.Conversation
	Messages     []*models.Message
	Units        []*models.DailyAnalysis
	ScoringUnits []models.ScoringUnit
}

// Result is the output of normalizing one upload payload.
type Result struct {
	Conversations []*ConversationData
	Stats         Stats
}

// Normalize detects the payload shape, validates and cleans every message,
// and groups the survivors into conversations subdivided by calendar date.
// Unparseable timestamps fall back to now, counted as lossy.
func Normalize(raw []byte, now time.Time) (*Result, error) {
	format, err := DetectFormat(raw)
	if err != nil {
		return nil, err
	}

	grouped, err := toGrouped(raw, format)
	if err != nil {
		return nil, err
	}

	res := &Result{}

	chatIDs := make([]string, 0, len(grouped))
	for id := range grouped {
		chatIDs = append(chatIDs, id)
	}
	sort.Strings(chatIDs)

	for _, chatID := range chatIDs {
		conv := normalizeConversation(chatID, grouped[chatID], now, &res.Stats)
		if conv != nil {
			res.Conversations = append(res.Conversations, conv)
		}
	}

	return res, nil
}

// toGrouped routes each detected variant to its own normalizer, all producing
// the canonical chat ID → message list shape.
func toGrouped(raw []byte, format Format) (map[string][]rawMessage, error) {
	switch format {
	case FormatGrouped:
		return parseGrouped(raw)
	case FormatFlat:
		var list []rawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		return groupFlat(list), nil
	case FormatWrapped:
		var obj map[string][]rawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		for _, list := range obj {
			return groupFlat(list), nil
		}
		return nil, fmt.Errorf("%w: empty wrapper", ErrMalformedPayload)
	default:
		return nil, ErrMalformedPayload
	}
}

func parseGrouped(raw []byte) (map[string][]rawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	grouped := make(map[string][]rawMessage, len(obj))
	for chatID, v := range obj {
		var list []rawMessage
		if err := json.Unmarshal(v, &list); err != nil {
			slog.Warn("skipping chat: messages must be an array", "chat_id", chatID)
			continue
		}
		grouped[chatID] = list
	}
	return grouped, nil
}

// groupFlat buckets a flat message list by each message's own chat ID field.
// Messages without one are dropped.
func groupFlat(list []rawMessage) map[string][]rawMessage {
	grouped := make(map[string][]rawMessage)
	for _, msg := range list {
		chatID := stringField(msg, chatIDKeys...)
		if chatID == "" {
			continue
		}
		grouped[chatID] = append(grouped[chatID], msg)
	}
	return grouped
}

// normalizeConversation validates one conversation's messages and builds the
// conversation record plus its per-day units. Returns nil when no valid
// messages remain.
func normalizeConversation(chatID string, msgs []rawMessage, now time.Time, stats *Stats) *ConversationData {
	convID := uuid.New()
	var cleaned []*models.Message
	var customerName *string

	for _, raw := range msgs {
		content, ok := validate(raw)
		if !ok {
			stats.DroppedMessages++
			continue
		}
		if strings.Contains(content, autoresponseMarker) {
			stats.FilteredAutoresponses++
			continue
		}

		sentAt, lossy := parseTimestamp(raw, now)
		if lossy {
			stats.LossyTimestamps++
		}
		if customerName == nil {
			if name := stringField(raw, "CUSTOMER_NAME"); name != "" {
				customerName = &name
			}
		}

		cleaned = append(cleaned, &models.Message{
			ID:             uuid.New(),
			ConversationID: convID,
			ChatID:         chatID,
			Content:        strings.TrimSpace(content),
			Direction:      raw["DIRECTION"].(string),
			SentAt:         sentAt,
			CreatedAt:      now,
		})
	}

	if len(cleaned) == 0 {
		slog.Warn("no valid messages for chat", "chat_id", chatID)
		return nil
	}

	sort.Slice(cleaned, func(i, j int) bool {
		return cleaned[i].SentAt.Before(cleaned[j].SentAt)
	})

	conv := &models.Conversation{
		ID:            convID,
		ChatID:        chatID,
		CustomerName:  customerName,
		TotalMessages: len(cleaned),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, m := range cleaned {
		if m.Direction == models.DirectionToCompany {
			conv.CustomerMessages++
		} else {
			conv.AgentMessages++
		}
	}
	first := cleaned[0].SentAt
	last := cleaned[len(cleaned)-1].SentAt
	conv.FirstMessageAt = &first
	conv.LastMessageAt = &last

	data := &ConversationData{Conversation: conv, Messages: cleaned}
	buildUnits(data, now)
	return data
}

// buildUnits subdivides a conversation's messages by calendar date into
// pending daily analysis units with their time metrics and transcripts.
func buildUnits(data *ConversationData, now time.Time) {
	byDate := make(map[time.Time][]*models.Message)
	var dates []time.Time
	for _, m := range data.Messages {
		d := dateOf(m.SentAt)
		if _, seen := byDate[d]; !seen {
			dates = append(dates, d)
		}
		byDate[d] = append(byDate[d], m)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	for _, d := range dates {
		msgs := byDate[d]
		tm := scoring.ComputeTimeMetrics(msgs)

		unit := &models.DailyAnalysis{
			ID:                   uuid.New(),
			ConversationID:       data.Conversation.ID,
			ChatID:               data.Conversation.ChatID,
			AnalysisDate:         d,
			FirstResponseSeconds: tm.FirstResponseSeconds,
			AvgResponseSeconds:   tm.AvgResponseSeconds,
			HandlingSeconds:      tm.HandlingSeconds,
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		data.Units = append(data.Units, unit)
		data.ScoringUnits = append(data.ScoringUnits, models.ScoringUnit{
			ID:           unit.ID,
			ChatID:       unit.ChatID,
			AnalysisDate: d,
			Transcript:   transcript(msgs),
		})
	}
}

// transcript renders a unit's messages as speaker-labelled lines for the
// scoring prompt.
func transcript(msgs []*models.Message) string {
	var b strings.Builder
	for i, m := range msgs {
		if i > 0 {
			b.WriteByte('\n')
		}
		if m.Direction == models.DirectionToCompany {
			b.WriteString("Customer: ")
		} else {
			b.WriteString("Agent: ")
		}
		b.WriteString(m.Content)
	}
	return b.String()
}

// validate checks the per-message requirements: required fields present,
// direction in range, content a non-empty string. Invalid messages are
// dropped, non-fatally.
func validate(msg rawMessage) (string, bool) {
	content, ok := msg["MESSAGE_CONTENT"].(string)
	if !ok || strings.TrimSpace(content) == "" {
		return "", false
	}
	dir, ok := msg["DIRECTION"].(string)
	if !ok || (dir != models.DirectionToCompany && dir != models.DirectionToClient) {
		return "", false
	}
	if _, ok := msg["SOCIAL_CREATE_TIME"]; !ok {
		return "", false
	}
	return content, true
}

// parseTimestamp tries RFC 3339, then the legacy layout, then falls back to
// ingestion time. The fallback is lossy and reported to the caller.
func parseTimestamp(msg rawMessage, now time.Time) (time.Time, bool) {
	s, ok := msg["SOCIAL_CREATE_TIME"].(string)
	if !ok {
		return now, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), false
	}
	if t, err := time.Parse(timestampFallbackLayout, s); err == nil {
		return t.UTC(), false
	}
	return now, true
}

func stringField(msg rawMessage, keys ...string) string {
	for _, k := range keys {
		if v, ok := msg[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func dateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
