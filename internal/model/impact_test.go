package model

import "testing"

func TestCalculateImpact(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name                    string
		page, pps, schedules    int
		remaining, perDay, days int
		pct                     int
	}{
		{name: "fresh", page: 1, pps: 1, schedules: 1, remaining: 604, perDay: 1, days: 604, pct: 0},
		{name: "wizard scenario", page: 50, pps: 2, schedules: 1, remaining: 555, perDay: 2, days: 278, pct: 8},
		{name: "two schedules", page: 302, pps: 5, schedules: 2, remaining: 303, perDay: 10, days: 31, pct: 50},
		{name: "last page", page: 604, pps: 3, schedules: 1, remaining: 1, perDay: 3, days: 1, pct: 100},
		{name: "no schedules", page: 10, pps: 3, schedules: 0, remaining: 595, perDay: 0, days: 0, pct: 1},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateImpact(tt.page, tt.pps, tt.schedules)
			if got.RemainingPages != tt.remaining || got.PagesPerDay != tt.perDay || got.DaysToComplete != tt.days || got.CompletionPercentage != tt.pct {
				t.Fatalf("CalculateImpact(%d,%d,%d) = %+v", tt.page, tt.pps, tt.schedules, got)
			}
		})
	}
}

func TestNextSend(t *testing.T) {
	t.Parallel()
	if from, to, ok := NextSend(50, 2); !ok || from != 50 || to != 51 {
		t.Fatalf("NextSend(50,2) = %d,%d,%v", from, to, ok)
	}
	if from, to, ok := NextSend(602, 5); !ok || from != 602 || to != 604 {
		t.Fatalf("NextSend(602,5) = %d,%d,%v", from, to, ok)
	}
	if _, _, ok := NextSend(605, 1); ok {
		t.Fatal("NextSend on a complete target should report !ok")
	}
}
