// Package ingest normalizes raw chat transcript payloads into conversations
// and per-day analysis units.
package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Format identifies the structural shape of an upload payload.
type Format int

const (
	FormatUnknown Format = iota
	// FormatGrouped is a mapping from chat ID to message list.
	FormatGrouped
	// FormatFlat is a flat list of messages, each carrying its own chat ID.
	FormatFlat
	// FormatWrapped is a single-key object wrapping a flat list.
	FormatWrapped
)

func (f Format) String() string {
	switch f {
	case FormatGrouped:
		return "grouped"
	case FormatFlat:
		return "flat"
	case FormatWrapped:
		return "wrapped"
	default:
		return "unknown"
	}
}

// ErrMalformedPayload is returned when the payload cannot be matched to any
// supported shape. Nothing is processed in that case.
var ErrMalformedPayload = errors.New("malformed payload")

// chatIDKeys are the accepted per-message chat ID fields in flat payloads.
var chatIDKeys = []string{"CHAT_ID", "FB_CHAT_ID"}

// DetectFormat sniffs the payload shape structurally (value types and key
// count), without any explicit format flag.
func DetectFormat(raw []byte) (Format, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return FormatUnknown, fmt.Errorf("%w: empty payload", ErrMalformedPayload)
	}

	switch trimmed[0] {
	case '[':
		var list []json.RawMessage
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return FormatUnknown, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		return FormatFlat, nil
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return FormatUnknown, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		if len(obj) == 0 {
			return FormatUnknown, fmt.Errorf("%w: empty object", ErrMalformedPayload)
		}
		if len(obj) == 1 {
			for _, v := range obj {
				if isWrappedList(v) {
					return FormatWrapped, nil
				}
			}
		}
		return FormatGrouped, nil
	default:
		return FormatUnknown, fmt.Errorf("%w: payload must be a JSON object or array", ErrMalformedPayload)
	}
}

// isWrappedList reports whether a single-key object's value is a message list
// whose elements carry their own chat ID, distinguishing a wrapper from a
// grouped payload with one conversation.
func isWrappedList(v json.RawMessage) bool {
	var list []map[string]json.RawMessage
	if err := json.Unmarshal(v, &list); err != nil || len(list) == 0 {
		return false
	}
	for _, key := range chatIDKeys {
		if _, ok := list[0][key]; ok {
			return true
		}
	}
	return false
}
