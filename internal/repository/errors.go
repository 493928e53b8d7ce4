package repository

import "errors"

var (
	// ErrInvalidSlot indicates an unknown staging slot
	ErrInvalidSlot = errors.New("invalid staging slot")

	// ErrInvalidExtension indicates an empty or malformed file extension
	ErrInvalidExtension = errors.New("invalid file extension")

	// ErrInvalidOutputKind indicates an unknown output directory kind
	ErrInvalidOutputKind = errors.New("invalid output kind")

	// ErrWorkspaceUnavailable indicates the data directory cannot be used
	ErrWorkspaceUnavailable = errors.New("workspace unavailable")
)
