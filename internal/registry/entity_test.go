package registry

import "testing"

func TestMatchesEventType(t *testing.T) {
	sub := &Subscription{EventTypes: []string{"order.created", "order.updated"}}

	if !sub.MatchesEventType("order.created") {
		t.Error("expected order.created to match")
	}
	if sub.MatchesEventType("invoice.paid") {
		t.Error("expected invoice.paid not to match")
	}
}

func TestMatchesFilter(t *testing.T) {
	cases := []struct {
		name    string
		filter  map[string]any
		payload map[string]any
		want    bool
	}{
		{
			name:    "empty filter matches everything",
			filter:  nil,
			payload: map[string]any{"region": "eu"},
			want:    true,
		},
		{
			name:    "scalar equality",
			filter:  map[string]any{"region": "eu"},
			payload: map[string]any{"region": "eu", "extra": 1},
			want:    true,
		},
		{
			name:    "scalar mismatch",
			filter:  map[string]any{"region": "eu"},
			payload: map[string]any{"region": "us"},
			want:    false,
		},
		{
			name:    "missing field",
			filter:  map[string]any{"region": "eu"},
			payload: map[string]any{"other": "eu"},
			want:    false,
		},
		{
			name:    "map-valued filter matches structurally",
			filter:  map[string]any{"meta": map[string]any{"tier": "gold", "beta": true}},
			payload: map[string]any{"meta": map[string]any{"tier": "gold", "beta": true}},
			want:    true,
		},
		{
			name:    "map-valued filter mismatch",
			filter:  map[string]any{"meta": map[string]any{"tier": "gold"}},
			payload: map[string]any{"meta": map[string]any{"tier": "silver"}},
			want:    false,
		},
		{
			name:    "slice-valued filter matches structurally",
			filter:  map[string]any{"tags": []any{"a", "b"}},
			payload: map[string]any{"tags": []any{"a", "b"}},
			want:    true,
		},
		{
			name:    "map filter against scalar payload value",
			filter:  map[string]any{"meta": map[string]any{"tier": "gold"}},
			payload: map[string]any{"meta": "gold"},
			want:    false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sub := &Subscription{Filter: tc.filter}
			if got := sub.MatchesFilter(tc.payload); got != tc.want {
				t.Errorf("MatchesFilter() = %v, want %v", got, tc.want)
			}
		})
	}
}
