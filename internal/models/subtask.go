package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Subtask is a single checklist entry of a Todo
type Subtask struct {
	Title string `json:"title"`
	Done  bool   `json:"done"`
}

// UnmarshalJSON accepts both the structured {"title","done"} form and the
// legacy form where a subtask was stored as a bare string.
func (s *Subtask) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = Subtask{}
		return nil
	}

	if data[0] == '"' {
		var title string
		if err := json.Unmarshal(data, &title); err != nil {
			return fmt.Errorf("failed to decode legacy subtask: %w", err)
		}
		*s = Subtask{Title: title}
		return nil
	}

	type plain Subtask
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("failed to decode subtask: %w", err)
	}
	*s = Subtask(p)
	return nil
}

// Subtasks is the ordered subtask list of a Todo
type Subtasks []Subtask

// ParseSubtasks decodes a stored subtask document. Empty input yields an empty list.
func ParseSubtasks(raw []byte) (Subtasks, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Subtasks{}, nil
	}
	var out Subtasks
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = Subtasks{}
	}
	return out, nil
}
