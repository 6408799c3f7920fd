package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	ErrInvalidTime = errors.New("invalid time of day")
	ErrInvalidCron = errors.New("invalid daily cron expression")
)

// Schedule is a daily time-of-day trigger. It is stored as a cron string
// ("minute hour * * *") and only converted at the storage boundary.
type Schedule struct {
	Hour   int
	Minute int
}

var reTimeOfDay = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

// ParseTime parses strict HH:MM input (one or two digit hour, two digit minute).
func ParseTime(raw string) (Schedule, error) {
	m := reTimeOfDay.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return Schedule{}, ErrInvalidTime
	}
	h, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	s := Schedule{Hour: h, Minute: mm}
	if !s.Valid() {
		return Schedule{}, ErrInvalidTime
	}
	return s, nil
}

func (s Schedule) Valid() bool {
	return s.Hour >= 0 && s.Hour <= 23 && s.Minute >= 0 && s.Minute <= 59
}

// Format renders the schedule as zero padded HH:MM.
func (s Schedule) Format() string {
	return fmt.Sprintf("%02d:%02d", s.Hour, s.Minute)
}

func (s Schedule) String() string { return s.Format() }

// Cron returns the five field cron expression used on disk and by the trigger registry.
func (s Schedule) Cron() string {
	return fmt.Sprintf("%d %d * * *", s.Minute, s.Hour)
}

// ParseCron accepts only the daily form produced by Cron.
func ParseCron(expr string) (Schedule, error) {
	f := strings.Fields(expr)
	if len(f) != 5 || f[2] != "*" || f[3] != "*" || f[4] != "*" {
		return Schedule{}, fmt.Errorf("%w: %q", ErrInvalidCron, expr)
	}
	mm, err1 := strconv.Atoi(f[0])
	h, err2 := strconv.Atoi(f[1])
	if err1 != nil || err2 != nil {
		return Schedule{}, fmt.Errorf("%w: %q", ErrInvalidCron, expr)
	}
	s := Schedule{Hour: h, Minute: mm}
	if !s.Valid() {
		return Schedule{}, fmt.Errorf("%w: %q", ErrInvalidCron, expr)
	}
	return s, nil
}

// EncodeSchedules serializes schedules as a JSON array of cron strings.
func EncodeSchedules(list []Schedule) (string, error) {
	out := make([]string, 0, len(list))
	for _, s := range list {
		out = append(out, s.Cron())
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeSchedules is the inverse of EncodeSchedules.
func DecodeSchedules(raw string) ([]Schedule, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var exprs []string
	if err := json.Unmarshal([]byte(raw), &exprs); err != nil {
		return nil, fmt.Errorf("decode schedules: %w", err)
	}
	out := make([]Schedule, 0, len(exprs))
	for _, e := range exprs {
		s, err := ParseCron(e)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// FormatSchedules joins schedules for display, e.g. "06:00, 18:30".
func FormatSchedules(list []Schedule) string {
	parts := make([]string, 0, len(list))
	for _, s := range list {
		parts = append(parts, s.Format())
	}
	return strings.Join(parts, ", ")
}

// HasSchedule reports whether list already contains s.
func HasSchedule(list []Schedule, s Schedule) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
