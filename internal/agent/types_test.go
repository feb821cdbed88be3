package agent

import (
	"testing"
)

func TestParseActionsSingleObject(t *testing.T) {
	t.Parallel()

	raw := `{"action_type":"click","element_description":"search box","coordinates":[120,40],"confidence":0.8}`
	actions, err := ParseActions(raw)
	if err != nil {
		t.Fatalf("ParseActions() error = %v", err)
	}
	if len(actions) != 1 {
		t.Fatalf("ParseActions() returned %d actions, want 1", len(actions))
	}
	got := actions[0]
	if got.ActionType != "click" || got.ElementDescription != "search box" {
		t.Errorf("action = %+v, want click on search box", got)
	}
	if len(got.Coordinates) != 2 || got.Coordinates[0] != 120 || got.Coordinates[1] != 40 {
		t.Errorf("Coordinates = %v, want [120 40]", got.Coordinates)
	}
	if got.Confidence != 0.8 {
		t.Errorf("Confidence = %v, want 0.8", got.Confidence)
	}
}

func TestParseActionsArray(t *testing.T) {
	t.Parallel()

	raw := `[
		{"action_type":"click","element_description":"login link","confidence":0.9},
		{"element_description":"not an action"},
		{"action_type":"type","element_description":"username field","text_input":"alice"}
	]`
	actions, err := ParseActions(raw)
	if err != nil {
		t.Fatalf("ParseActions() error = %v", err)
	}
	if len(actions) != 2 {
		t.Fatalf("ParseActions() returned %d actions, want 2 (entry without action_type skipped)", len(actions))
	}
	if actions[0].ActionType != "click" || actions[1].ActionType != "type" {
		t.Errorf("action types = [%q, %q], want [click, type]", actions[0].ActionType, actions[1].ActionType)
	}
	if actions[1].TextInput != "alice" {
		t.Errorf("TextInput = %q, want %q", actions[1].TextInput, "alice")
	}
}

func TestParseActionsNormalizesConfidence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want float64
	}{
		{"missing defaults to full", `{"action_type":"click"}`, 1.0},
		{"negative clamps to zero", `{"action_type":"click","confidence":-0.5}`, 0},
		{"above one clamps to one", `{"action_type":"click","confidence":3}`, 1.0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			actions, err := ParseActions(tt.raw)
			if err != nil {
				t.Fatalf("ParseActions() error = %v", err)
			}
			if len(actions) != 1 {
				t.Fatalf("ParseActions() returned %d actions, want 1", len(actions))
			}
			if actions[0].Confidence != tt.want {
				t.Errorf("Confidence = %v, want %v", actions[0].Confidence, tt.want)
			}
		})
	}
}

func TestParseActionsNonActionShapes(t *testing.T) {
	t.Parallel()

	// A valid JSON object that is not an action yields no actions.
	actions, err := ParseActions(`{"thought":"I should look around"}`)
	if err != nil {
		t.Fatalf("ParseActions(non-action object) error = %v", err)
	}
	if len(actions) != 0 {
		t.Errorf("ParseActions(non-action object) = %v, want none", actions)
	}

	if _, err := ParseActions(`not json at all`); err == nil {
		t.Error("ParseActions(garbage) error = nil, want parse error")
	}
}
