package models

import (
	"encoding/json"
	"testing"
)

func TestParseSubtasks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    Subtasks
		wantErr bool
	}{
		{
			name: "structured subtasks",
			raw:  `[{"title":"buy milk","done":true},{"title":"call mom","done":false}]`,
			want: Subtasks{{Title: "buy milk", Done: true}, {Title: "call mom"}},
		},
		{
			name: "legacy string subtasks",
			raw:  `["buy milk","call mom"]`,
			want: Subtasks{{Title: "buy milk"}, {Title: "call mom"}},
		},
		{
			name: "mixed shapes",
			raw:  `["legacy",{"title":"new","done":true}]`,
			want: Subtasks{{Title: "legacy"}, {Title: "new", Done: true}},
		},
		{
			name: "structured without done flag",
			raw:  `[{"title":"no flag"}]`,
			want: Subtasks{{Title: "no flag"}},
		},
		{
			name: "empty input",
			raw:  ``,
			want: Subtasks{},
		},
		{
			name: "null document",
			raw:  `null`,
			want: Subtasks{},
		},
		{
			name:    "not an array",
			raw:     `{"title":"x"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseSubtasks([]byte(tt.raw))
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Expected %d subtasks, got %d", len(tt.want), len(got))
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("subtask %d: expected %+v, got %+v", i, tt.want[i], got[i])
				}
			}
		})
	}
}

func TestSubtasks_MarshalStructured(t *testing.T) {
	t.Parallel()

	// Legacy data is rewritten in the structured shape once it round-trips.
	parsed, err := ParseSubtasks([]byte(`["legacy"]`))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	out, err := json.Marshal(parsed)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if string(out) != `[{"title":"legacy","done":false}]` {
		t.Errorf("Unexpected encoding: %s", out)
	}
}
