package mocks

import "errors"

var (
	// ErrNoMedia is returned when DownloadMedia is called for a message without media.
	ErrNoMedia = errors.New("message has no media")
)
