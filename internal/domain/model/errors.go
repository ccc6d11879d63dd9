package model

import "errors"

var (
	ErrInvalidWindow = errors.New("invalid window")
	ErrUnknownSource = errors.New("unknown source")
)
