package services

import "errors"

var (
	ErrPolicyNotFound    = errors.New("auto-update policy not found")
	ErrPolicyExists      = errors.New("auto-update policy already exists for this user and package")
	ErrHistoryNotFound   = errors.New("auto-update history record not found")
	ErrInvalidTransition = errors.New("auto-update history record is already finished")
	ErrConsentNotFound   = errors.New("tenant consent record not found")
	ErrSweepInProgress   = errors.New("another sweep is in progress")
)
