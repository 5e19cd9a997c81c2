package models

type EntryStats struct {
	TotalEntries   int     `json:"total_entries"`
	TotalReviews   int     `json:"total_reviews"`
	Learned        int     `json:"learned"`
	Due            int     `json:"due"`
	New            int     `json:"new"`
	Unsynced       int     `json:"unsynced"`
	AvgQuality     float64 `json:"avg_quality"`
	AvgEaseFactor  float64 `json:"avg_ease_factor"`
	AvgIntervalDay float64 `json:"avg_interval_days"`
}
