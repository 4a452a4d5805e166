package models

import "time"

// Turn is one question/answer exchange kept in a session's conversation window.
type Turn struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	At       time.Time `json:"at"`
}

// CacheEntry is a stored terminal result for a normalized question.
type CacheEntry struct {
	Answer     string    `json:"answer"`
	SQLQueries []string  `json:"sql_queries"`
	ReportID   string    `json:"report_id,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Fresh reports whether the entry is younger than ttl at now.
func (e *CacheEntry) Fresh(now time.Time, ttl time.Duration) bool {
	return e != nil && now.Sub(e.Timestamp) < ttl
}
