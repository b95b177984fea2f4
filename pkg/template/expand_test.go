package template

import (
	"strings"
	"testing"
	"time"
)

func TestExpand(t *testing.T) {
	now := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)

	tests := []struct {
		name  string
		input string
		vars  map[string]string
		want  string
	}{
		{name: "no placeholders", input: "chain.jsonl", want: "chain.jsonl"},
		{name: "date", input: "chain-{date}.jsonl", want: "chain-2024-03-09.jsonl"},
		{name: "time", input: "{time}", want: "140507"},
		{name: "datetime", input: "chain-{datetime}.jsonl", want: "chain-20240309-140507.jsonl"},
		{name: "unix", input: "{unix}", want: "1709993107"},
		{name: "custom var", input: "chain-{blocks}.jsonl", vars: map[string]string{"blocks": "42"}, want: "chain-42.jsonl"},
		{name: "custom overrides builtin", input: "{date}", vars: map[string]string{"date": "today"}, want: "today"},
		{name: "unknown kept", input: "{nope}-{date}", want: "{nope}-2024-03-09"},
		{name: "repeated", input: "{date}/{date}", want: "2024-03-09/2024-03-09"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Expand(tt.input, now, tt.vars); got != tt.want {
				t.Errorf("Expand(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestExpand_Hostname(t *testing.T) {
	got := Expand("{hostname}", time.Now(), nil)
	if got == "" || strings.Contains(got, "{") || strings.Contains(got, ".") {
		t.Errorf("unexpected hostname expansion %q", got)
	}
}

func TestExpand_LocalTimeUsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	now := time.Date(2024, 3, 10, 2, 0, 0, 0, loc)
	if got := Expand("{date}", now, nil); got != "2024-03-09" {
		t.Errorf("Expand used local date: %q", got)
	}
}
