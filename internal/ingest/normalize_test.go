package ingest

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/powerpulse/pulsedesk/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func groupedPayload() []byte {
	return []byte(`{
		"chat-1": [
			{"MESSAGE_CONTENT": "my router is broken", "DIRECTION": "to_company", "SOCIAL_CREATE_TIME": "2024-03-01T10:00:00Z"},
			{"MESSAGE_CONTENT": "let me check that", "DIRECTION": "to_client", "SOCIAL_CREATE_TIME": "2024-03-01T10:05:00Z"}
		],
		"chat-2": [
			{"MESSAGE_CONTENT": "billing question", "DIRECTION": "to_company", "SOCIAL_CREATE_TIME": "2024-03-02T09:00:00Z"}
		]
	}`)
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Format
	}{
		{"grouped", `{"chat-1": [{"MESSAGE_CONTENT":"a"}], "chat-2": []}`, FormatGrouped},
		{"flat", `[{"CHAT_ID":"c1","MESSAGE_CONTENT":"a"}]`, FormatFlat},
		{"wrapped", `{"messages": [{"CHAT_ID":"c1","MESSAGE_CONTENT":"a"}]}`, FormatWrapped},
		{"single key grouped", `{"chat-1": [{"MESSAGE_CONTENT":"a"}]}`, FormatGrouped},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectFormat([]byte(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectFormatMalformed(t *testing.T) {
	for _, payload := range []string{"", "   ", "not json", `"a string"`, `{}`, `{"a": [}`} {
		_, err := DetectFormat([]byte(payload))
		assert.ErrorIs(t, err, ErrMalformedPayload, "payload %q", payload)
	}
}

func TestNormalizeGrouped(t *testing.T) {
	res, err := Normalize(groupedPayload(), testNow)
	require.NoError(t, err)
	require.Len(t, res.Conversations, 2)

	c1 := res.Conversations[0]
	assert.Equal(t, "chat-1", c1.Conversation.ChatID)
	assert.Equal(t, 2, c1.Conversation.TotalMessages)
	assert.Equal(t, 1, c1.Conversation.CustomerMessages)
	assert.Equal(t, 1, c1.Conversation.AgentMessages)
	require.Len(t, c1.Units, 1)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), c1.Units[0].AnalysisDate)
	require.NotNil(t, c1.Units[0].FirstResponseSeconds)
	assert.InDelta(t, 300, *c1.Units[0].FirstResponseSeconds, 1e-9)

	require.Len(t, c1.ScoringUnits, 1)
	assert.Equal(t, c1.Units[0].ID, c1.ScoringUnits[0].ID)
	assert.Contains(t, c1.ScoringUnits[0].Transcript, "Customer: my router is broken")
	assert.Contains(t, c1.ScoringUnits[0].Transcript, "Agent: let me check that")
}

func TestNormalizeFlatAndWrappedMatchGrouped(t *testing.T) {
	flat := []byte(`[
		{"CHAT_ID":"chat-1","MESSAGE_CONTENT":"hello","DIRECTION":"to_company","SOCIAL_CREATE_TIME":"2024-03-01T10:00:00Z"},
		{"CHAT_ID":"chat-2","MESSAGE_CONTENT":"hi there","DIRECTION":"to_company","SOCIAL_CREATE_TIME":"2024-03-01T11:00:00Z"}
	]`)
	wrapped := []byte(fmt.Sprintf(`{"data": %s}`, flat))

	fromFlat, err := Normalize(flat, testNow)
	require.NoError(t, err)
	fromWrapped, err := Normalize(wrapped, testNow)
	require.NoError(t, err)

	require.Len(t, fromFlat.Conversations, 2)
	require.Len(t, fromWrapped.Conversations, 2)
	for i := range fromFlat.Conversations {
		assert.Equal(t, fromFlat.Conversations[i].Conversation.ChatID,
			fromWrapped.Conversations[i].Conversation.ChatID)
		assert.Equal(t, fromFlat.Conversations[i].Conversation.TotalMessages,
			fromWrapped.Conversations[i].Conversation.TotalMessages)
	}
}

func TestNormalizeDropsInvalidMessages(t *testing.T) {
	payload := []byte(`{
		"chat-1": [
			{"MESSAGE_CONTENT": "valid", "DIRECTION": "to_company", "SOCIAL_CREATE_TIME": "2024-03-01T10:00:00Z"},
			{"DIRECTION": "to_company", "SOCIAL_CREATE_TIME": "2024-03-01T10:01:00Z"},
			{"MESSAGE_CONTENT": "", "DIRECTION": "to_company", "SOCIAL_CREATE_TIME": "2024-03-01T10:02:00Z"},
			{"MESSAGE_CONTENT": 42, "DIRECTION": "to_company", "SOCIAL_CREATE_TIME": "2024-03-01T10:03:00Z"},
			{"MESSAGE_CONTENT": "bad direction", "DIRECTION": "sideways", "SOCIAL_CREATE_TIME": "2024-03-01T10:04:00Z"},
			{"MESSAGE_CONTENT": "no timestamp", "DIRECTION": "to_company"}
		]
	}`)

	res, err := Normalize(payload, testNow)
	require.NoError(t, err)
	require.Len(t, res.Conversations, 1)
	assert.Equal(t, 1, res.Conversations[0].Conversation.TotalMessages)
	assert.Equal(t, 5, res.Stats.DroppedMessages)
}

func TestNormalizeFiltersAutoresponses(t *testing.T) {
	payload := []byte(`{
		"chat-1": [
			{"MESSAGE_CONTENT": "real question", "DIRECTION": "to_company", "SOCIAL_CREATE_TIME": "2024-03-01T10:00:00Z"},
			{"MESSAGE_CONTENT": "Thank you for contacting us *977# we will reply soon", "DIRECTION": "to_client", "SOCIAL_CREATE_TIME": "2024-03-01T10:00:01Z"}
		]
	}`)

	res, err := Normalize(payload, testNow)
	require.NoError(t, err)
	require.Len(t, res.Conversations, 1)
	assert.Equal(t, 1, res.Conversations[0].Conversation.TotalMessages)
	assert.Equal(t, 1, res.Stats.FilteredAutoresponses)
	assert.Equal(t, 0, res.Stats.DroppedMessages)
}

func TestNormalizeTimestampFallbacks(t *testing.T) {
	payload := []byte(`{
		"chat-1": [
			{"MESSAGE_CONTENT": "iso", "DIRECTION": "to_company", "SOCIAL_CREATE_TIME": "2024-03-01T10:00:00Z"},
			{"MESSAGE_CONTENT": "legacy", "DIRECTION": "to_company", "SOCIAL_CREATE_TIME": "2024-03-01 10:30:00"},
			{"MESSAGE_CONTENT": "garbage", "DIRECTION": "to_company", "SOCIAL_CREATE_TIME": "yesterday-ish"}
		]
	}`)

	res, err := Normalize(payload, testNow)
	require.NoError(t, err)
	require.Len(t, res.Conversations, 1)

	msgs := res.Conversations[0].Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, 1, res.Stats.LossyTimestamps)

	var sawFallback bool
	for _, m := range msgs {
		if m.SentAt.Equal(testNow) {
			sawFallback = true
		}
	}
	assert.True(t, sawFallback, "unparseable timestamp should default to ingestion time")
}

func TestNormalizeGroupingRoundTrip(t *testing.T) {
	// Grouping by day and re-flattening reproduces the original message
	// multiset, and every unit's date matches its members.
	payload := []byte(`{
		"chat-1": [
			{"MESSAGE_CONTENT": "day one a", "DIRECTION": "to_company", "SOCIAL_CREATE_TIME": "2024-03-01T09:00:00Z"},
			{"MESSAGE_CONTENT": "day one b", "DIRECTION": "to_client", "SOCIAL_CREATE_TIME": "2024-03-01T23:59:59Z"},
			{"MESSAGE_CONTENT": "day two a", "DIRECTION": "to_company", "SOCIAL_CREATE_TIME": "2024-03-02T00:00:01Z"},
			{"MESSAGE_CONTENT": "day three a", "DIRECTION": "to_company", "SOCIAL_CREATE_TIME": "2024-03-03T12:00:00Z"}
		]
	}`)

	res, err := Normalize(payload, testNow)
	require.NoError(t, err)
	require.Len(t, res.Conversations, 1)
	conv := res.Conversations[0]
	require.Len(t, conv.Units, 3)

	seen := map[string]int{}
	total := 0
	for i, unit := range conv.Units {
		for _, m := range conv.Messages {
			if dateOf(m.SentAt).Equal(unit.AnalysisDate) {
				seen[m.Content]++
				total++
			}
		}
		assert.Equal(t, unit.ID, conv.ScoringUnits[i].ID)
	}
	assert.Equal(t, len(conv.Messages), total)
	for _, m := range conv.Messages {
		assert.Equal(t, 1, seen[m.Content], "message %q lost or duplicated", m.Content)
	}
}

func TestNormalizeCustomerName(t *testing.T) {
	payload := []byte(`{
		"chat-1": [
			{"MESSAGE_CONTENT": "hi", "DIRECTION": "to_company", "SOCIAL_CREATE_TIME": "2024-03-01T10:00:00Z", "CUSTOMER_NAME": "Dana"}
		]
	}`)

	res, err := Normalize(payload, testNow)
	require.NoError(t, err)
	require.Len(t, res.Conversations, 1)
	require.NotNil(t, res.Conversations[0].Conversation.CustomerName)
	assert.Equal(t, "Dana", *res.Conversations[0].Conversation.CustomerName)
}

func TestNormalizeSkipsConversationWithNoValidMessages(t *testing.T) {
	payload := []byte(`{
		"chat-1": [{"MESSAGE_CONTENT": "", "DIRECTION": "to_company", "SOCIAL_CREATE_TIME": "x"}],
		"chat-2": [{"MESSAGE_CONTENT": "ok", "DIRECTION": "to_company", "SOCIAL_CREATE_TIME": "2024-03-01T10:00:00Z"}]
	}`)

	res, err := Normalize(payload, testNow)
	require.NoError(t, err)
	require.Len(t, res.Conversations, 1)
	assert.Equal(t, "chat-2", res.Conversations[0].Conversation.ChatID)
}

func TestNormalizeMalformedPayload(t *testing.T) {
	_, err := Normalize([]byte(`[1, 2, 3`), testNow)
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestNormalizeMessagesSortedByTime(t *testing.T) {
	payload := []byte(`{
		"chat-1": [
			{"MESSAGE_CONTENT": "second", "DIRECTION": "to_client", "SOCIAL_CREATE_TIME": "2024-03-01T11:00:00Z"},
			{"MESSAGE_CONTENT": "first", "DIRECTION": "to_company", "SOCIAL_CREATE_TIME": "2024-03-01T10:00:00Z"}
		]
	}`)

	res, err := Normalize(payload, testNow)
	require.NoError(t, err)
	msgs := res.Conversations[0].Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "second", msgs[1].Content)

	require.NotNil(t, res.Conversations[0].Conversation.FirstMessageAt)
	assert.Equal(t, msgs[0].SentAt, *res.Conversations[0].Conversation.FirstMessageAt)
}

func TestTranscriptLabelsSpeakers(t *testing.T) {
	msgs := []*models.Message{
		{Direction: models.DirectionToCompany, Content: "q"},
		{Direction: models.DirectionToClient, Content: "a"},
	}
	assert.Equal(t, "Customer: q\nAgent: a", transcript(msgs))
}

func TestGroupFlatDropsMissingChatID(t *testing.T) {
	var list []rawMessage
	require.NoError(t, json.Unmarshal([]byte(`[
		{"CHAT_ID":"c1","MESSAGE_CONTENT":"a"},
		{"MESSAGE_CONTENT":"orphan"}
	]`), &list))

	grouped := groupFlat(list)
	assert.Len(t, grouped, 1)
	assert.Len(t, grouped["c1"], 1)
}
