// Package ranking orders items by score decayed with age, the way Hacker News does.
package ranking

import (
	"math"
	"time"
)

const (
	DefaultGravity         = 1.8
	DefaultTimebaseInHours = 2
)

type Rankable interface {
	GetScore() int64
	Age() time.Time
}

// Rank computes the gravity rank of item at referenceTime. Items from the future are ranked as
// if they were just created.
func Rank(item Rankable, gravity float64, timebaseInHours int64, referenceTime time.Time) float64 {
	hours := referenceTime.Sub(item.Age()).Hours()
	if hours < 0 {
		hours = 0
	}
	s := item.GetScore()

	return float64(s) / math.Pow((float64(timebaseInHours)+hours), gravity)
}

// Best returns the item with the highest rank, the earliest one in items winning ties. It
// returns false when items is empty.
func Best[T Rankable](items []T, gravity float64, timebaseInHours int64, referenceTime time.Time) (T, bool) {
	var best T
	if len(items) == 0 {
		return best, false
	}

	bestRank := math.Inf(-1)
	for _, item := range items {
		if r := Rank(item, gravity, timebaseInHours, referenceTime); r > bestRank {
			best, bestRank = item, r
		}
	}

	return best, true
}
