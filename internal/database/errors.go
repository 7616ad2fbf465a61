package database

import "errors"

var (
	ErrStoreClosed  = errors.New("message store is closed")
	ErrWriteTimeout = errors.New("write operation timeout")
	ErrShuttingDown = errors.New("message store is shutting down")
)
