package service

import "errors"

var (
	ErrInvalidRequest       = errors.New("invalid request")
	ErrRiskDisabled         = errors.New("risk scoring is disabled")
	ErrModelUnavailable     = errors.New("model service unavailable")
	ErrInvalidModelResponse = errors.New("model returned an unusable response")
)
