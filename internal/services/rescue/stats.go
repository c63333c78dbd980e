package rescue

import (
	"math"
	"time"

	"github.com/litperpro/litper/internal/models"
)

// GetStats считает живую очередь и историю. Решённые элементы относятся к дню по ResolvedAt.
func (s *Service) GetStats() models.RescueQueueStats {
	now := s.now().In(s.loc)
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	weekAgo := now.Add(-7 * 24 * time.Hour)

	st := models.RescueQueueStats{
		ByPriority: make(map[models.RescuePriority]int, 4),
		ByStatus:   make(map[models.RescueStatus]int),
	}
	for _, p := range models.Priorities() {
		st.ByPriority[p] = 0
	}
	for _, rs := range models.RescueStatuses() {
		if !rs.IsTerminal() {
			st.ByStatus[rs] = 0
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var probSum float64
	for _, it := range s.queue {
		st.TotalInQueue++
		st.ByPriority[it.Priority]++
		st.ByStatus[it.Status]++
		probSum += it.RecoveryProbability
	}
	if st.TotalInQueue > 0 {
		st.AverageRecoveryProbability = round(probSum/float64(st.TotalInQueue), 3)
	}

	for i := range s.history {
		it := &s.history[i]
		resolved := it.CreatedAt
		if it.ResolvedAt != nil {
			resolved = *it.ResolvedAt
		}
		today := !resolved.Before(startOfDay)
		thisWeek := !resolved.Before(weekAgo)

		switch it.Status {
		case models.RescueStatusRecovered:
			st.TotalRecovered++
			if today {
				st.RecoveredToday++
			}
			if thisWeek {
				st.RecoveredThisWeek++
			}
		case models.RescueStatusLost:
			st.TotalLost++
			if today {
				st.LostToday++
			}
			if thisWeek {
				st.LostThisWeek++
			}
		}
	}
	if closed := st.TotalRecovered + st.TotalLost; closed > 0 {
		st.RecoveryRate = round(float64(st.TotalRecovered)/float64(closed)*100, 1)
	}
	return st
}

func round(v float64, digits int) float64 {
	p := math.Pow(10, float64(digits))
	return math.Round(v*p) / p
}
