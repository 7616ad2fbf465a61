package hub

import "errors"

var (
	ErrHubAlreadyRunning     = errors.New("hub is already running")
	ErrHubNotRunning         = errors.New("hub is not running")
	ErrRegisterChannelFull   = errors.New("register channel is full")
	ErrRegistrationAbandoned = errors.New("registration abandoned by caller")
)
