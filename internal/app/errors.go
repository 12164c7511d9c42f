package service

import (
	"errors"

	"github.com/okian/growth/internal/domain/model"
)

var (
	// ErrNotStarted is returned by asynchronous ingestion before Start.
	ErrNotStarted = errors.New("service not started")
	// ErrInvalidSubmission rejects a review that names no organization, no
	// applicant or no scores.
	ErrInvalidSubmission = errors.New("invalid submission")
	// ErrCounterOverflow is returned when a review counter would wrap.
	ErrCounterOverflow = model.ErrCounterOverflow

	// errSettled tells the sweep a record has no pending candidate.
	errSettled = errors.New("record settled")
)
