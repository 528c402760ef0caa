package codec

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrInvalidPayload is returned when a caller-supplied payload cannot be
// encoded into the database's canonical textual form.
var ErrInvalidPayload = errors.New("codec: invalid payload")

// ErrInvalidNoteKey is returned when a note key contains one of the
// reserved path characters ('.', '[', ']').
var ErrInvalidNoteKey = errors.New("codec: note key must not contain '.', '[' or ']'")

// Encode serializes a Value to the text form stored in a database column.
func Encode(v Value) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", ErrInvalidPayload
	}
	return string(data), nil
}

// Decode parses a database column back into a Value. An empty string
// decodes to Null, matching columns that were never written.
func Decode(s string) (Value, error) {
	if s == "" {
		return Null(), nil
	}
	var v Value
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return Value{}, ErrInvalidPayload
	}
	return v, nil
}

// EncodeStrings serializes a []string to its JSON text form.
func EncodeStrings(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "", ErrInvalidPayload
	}
	return string(data), nil
}

// DecodeStrings parses the JSON text form back into a []string.
func DecodeStrings(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var items []string
	if err := json.Unmarshal([]byte(s), &items); err != nil {
		return nil, ErrInvalidPayload
	}
	return items, nil
}

// EncodeInts serializes a []int64 (a job's parent id list) to JSON text.
func EncodeInts(items []int64) (string, error) {
	if items == nil {
		items = []int64{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "", ErrInvalidPayload
	}
	return string(data), nil
}

// DecodeInts parses the JSON text form back into a []int64.
func DecodeInts(s string) ([]int64, error) {
	if s == "" {
		return nil, nil
	}
	var items []int64
	if err := json.Unmarshal([]byte(s), &items); err != nil {
		return nil, ErrInvalidPayload
	}
	return items, nil
}

// ValidateNoteKey rejects keys containing '.', '[' or ']' before any
// SQL executes.
func ValidateNoteKey(key string) error {
	if strings.ContainsAny(key, ".[]") {
		return ErrInvalidNoteKey
	}
	return nil
}

// MergeNotes applies a set of updates to an existing notes map. A nil
// value for a key removes that key; anything else sets/overwrites it.
// The caller must have already validated every key with ValidateNoteKey.
func MergeNotes(existing map[string]Value, updates map[string]*Value) map[string]Value {
	merged := make(map[string]Value, len(existing)+len(updates))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range updates {
		if v == nil {
			delete(merged, k)
			continue
		}
		merged[k] = *v
	}
	return merged
}
