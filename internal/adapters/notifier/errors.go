package notifier

import "errors"

// Sentinel kinds for notifier errors.
var (
	ErrSetup = errors.New("notifier setup failed")
	ErrSend  = errors.New("notification send failed")
)
