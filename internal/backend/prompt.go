package backend

import (
	"encoding/json"
	"fmt"

	"github.com/powerpulse/pulsedesk/pkg/models"
)

// promptUnit is the shape of one unit inside the batch prompt.
type promptUnit struct {
	UnitID     string `json:"unit_id"`
	ChatID     string `json:"chat_id"`
	Date       string `json:"date"`
	Transcript string `json:"transcript"`
}

// BuildPrompt renders a single combined prompt for a batch of units. One
// request per batch keeps call volume low; results come back keyed by unit ID.
func BuildPrompt(units []models.ScoringUnit) string {
	pu := make([]promptUnit, len(units))
	for i, u := range units {
		pu[i] = promptUnit{
			UnitID:     u.ID.String(),
			ChatID:     u.ChatID,
			Date:       u.AnalysisDate.Format("2006-01-02"),
			Transcript: u.Transcript,
		}
	}
	input, _ := json.MarshalIndent(pu, "", "  ")

	return fmt.Sprintf(`Analyze the following batch of customer service conversation days and score each one.

CONVERSATION_DAYS:
%s

Respond with a JSON array containing exactly one object per input unit, in this EXACT format:
[
  {
    "unit_id": "<the original unit_id>",
    "sentiment_score": <0-10 float, overall customer sentiment for the day>,
    "sentiment_shift": <-5 to +5 float, sentiment at end of day minus start of day>,
    "resolution_achieved": <0-10 float, how fully the customer's issue was resolved>,
    "fcr_score": <0-10 float, how well the issue was handled without repeat contact>,
    "customer_effort": <1-7 float, effort the customer had to spend, 1 = least effort>,
    "topics": ["topic1", "topic2", "topic3"]
  }
]

SCORING GUIDELINES:
- Echo unit_id exactly as given; never invent or omit units.
- topics: 2-4 short lowercase tags for the day's subject matter.
- Be concise and accurate. Output only the JSON array, nothing else.`, input)
}
