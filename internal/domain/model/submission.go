package model

// Submission is one review of an applicant, as received from a reviewer.
type Submission struct {
	ID        string    `json:"id"`
	Org       Key       `json:"org"`
	Applicant Key       `json:"applicant"`
	Scores    []float64 `json:"scores"`
	// Timestamp overrides the submission time when non-zero.
	Timestamp int64 `json:"timestamp,omitempty"`
}
