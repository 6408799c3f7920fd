package scheduler

import (
	"sort"
	"time"
)

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	enabled := s.cfg.Enabled
	tz := s.cfg.Timezone
	c := s.c
	loc := s.loc
	last := s.lastReload
	trs := make([]trigger, 0, len(s.triggers))
	for _, t := range s.triggers {
		trs = append(trs, *t)
	}
	s.mu.Unlock()

	if loc == nil {
		loc = time.Local
	}
	if tz == "" {
		tz = loc.String()
	}

	items := make([]TriggerInfo, 0, len(trs))
	for _, t := range trs {
		it := TriggerInfo{Key: t.key, TargetID: t.targetID, Kind: string(t.kind), Spec: t.spec}
		if c != nil {
			e := c.Entry(t.entryID)
			it.Next = e.Next
			it.Prev = e.Prev
		}
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].Next.Equal(items[j].Next) {
			return items[i].Next.Before(items[j].Next)
		}
		return items[i].Key < items[j].Key
	})

	return Snapshot{
		Enabled:    enabled,
		Running:    c != nil,
		Timezone:   tz,
		LastReload: last,
		Triggers:   items,
	}
}
