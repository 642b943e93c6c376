package chat_errors

import (
	"errors"
)

// Common errors
var (
	// ErrBackendUnavailable wraps any query, mutation or subscribe call
	// that failed due to a network or service error.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrEmptyMessage is returned when a send is attempted with blank
	// content and no staged attachment.
	ErrEmptyMessage = errors.New("empty message")

	// ErrConversationClosed is returned when sending into a closed or
	// archived conversation.
	ErrConversationClosed = errors.New("conversation closed")

	// ErrSendFailed is returned after an optimistic insert had to be
	// rolled back because the insert mutation failed.
	ErrSendFailed = errors.New("send failed")

	// ErrStaleResponse marks a response to a superseded history or
	// conversation-list load. It is internal: callers drop it silently
	// and must never surface it to the user.
	ErrStaleResponse = errors.New("stale response discarded")

	// ErrSessionClosed is returned by session operations invoked on a
	// closed session; ErrNotReady covers a session still opening.
	ErrSessionClosed = errors.New("session closed")
	ErrSessionOpen   = errors.New("session already open")
	ErrNotReady      = errors.New("session not ready")
	ErrNotFound      = errors.New("not found")
	ErrInvalidInput  = errors.New("invalid input")
)
