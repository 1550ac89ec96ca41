package errors

import "fmt"

var (
	ErrWorkerPanic       = fmt.Errorf("worker panic")
	ErrOnlyCensoredFiles = fmt.Errorf("censored directory contains directories")
	ErrEmptyWords        = fmt.Errorf("no words have been found")
	ErrMailboxFull       = fmt.Errorf("mailbox is full")
	ErrMailboxClosed     = fmt.Errorf("mailbox is closed")
	ErrLineTooLong       = fmt.Errorf("line exceeds maximum length")
	ErrInvalidConfig     = fmt.Errorf("invalid configuration")
)
