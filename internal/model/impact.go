package model

import "math"

// Impact is the projected effect of a delivery configuration.
type Impact struct {
	RemainingPages       int
	PagesPerDay          int
	DaysToComplete       int
	CompletionPercentage int
}

// CalculateImpact projects completion for the given configuration.
// A zero schedule count yields PagesPerDay == 0 and DaysToComplete == 0.
func CalculateImpact(currentPage, pagesPerSend, scheduleCount int) Impact {
	remaining := MaxPage - currentPage + 1
	if remaining < 0 {
		remaining = 0
	}
	perDay := pagesPerSend * scheduleCount
	days := 0
	if perDay > 0 {
		days = DaysToComplete(remaining, perDay)
	}
	return Impact{
		RemainingPages:       remaining,
		PagesPerDay:          perDay,
		DaysToComplete:       days,
		CompletionPercentage: int(math.Round(float64(currentPage-1) / MaxPage * 100)),
	}
}

// DaysToComplete is ceil(remaining / perDay).
func DaysToComplete(remaining, perDay int) int {
	if perDay <= 0 || remaining <= 0 {
		return 0
	}
	return (remaining + perDay - 1) / perDay
}

// NextSend returns the page range the next trigger would deliver.
// ok is false once the target is complete.
func NextSend(currentPage, pagesPerSend int) (from, to int, ok bool) {
	if currentPage > MaxPage || pagesPerSend < 1 {
		return 0, 0, false
	}
	to = currentPage + pagesPerSend - 1
	if to > MaxPage {
		to = MaxPage
	}
	return currentPage, to, true
}
