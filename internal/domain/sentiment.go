package domain

import (
	"math"
	"time"
)

// ScoredItem es un item social ya puntuado por el scorer externo.
type ScoredItem struct {
	ID        string    `json:"id"`
	Score     float64   `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

// SentimentObservation resume un ciclo: una por decisión, inmutable.
type SentimentObservation struct {
	Score                float64 // [-1,1]
	SampleCount          int
	ObservedAtAgeMinutes float64
}

// Aggregate reduce los items a la media de scores (recortada a [-1,1]), el número
// de muestras y la antigüedad del item más reciente respecto a now.
// Sin items, o con items fechados en el futuro, la antigüedad es 0.
func Aggregate(items []ScoredItem, now time.Time) SentimentObservation {
	if len(items) == 0 {
		return SentimentObservation{}
	}

	var sum float64
	var newest time.Time
	for _, it := range items {
		sum += it.Score
		if it.CreatedAt.After(newest) {
			newest = it.CreatedAt
		}
	}

	age := 0.0
	if !newest.IsZero() && now.After(newest) {
		age = now.Sub(newest).Minutes()
	}

	return SentimentObservation{
		Score:                math.Max(-1, math.Min(1, sum/float64(len(items)))),
		SampleCount:          len(items),
		ObservedAtAgeMinutes: age,
	}
}
