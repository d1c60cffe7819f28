package domain

import "errors"

var (
	// ErrDestinationUnavailable means the addressed user has no live connection.
	ErrDestinationUnavailable = errors.New("destination unavailable")
	// ErrMediaUnavailable means camera or microphone could not be opened.
	ErrMediaUnavailable = errors.New("could not access camera/microphone")
	// ErrTransportDisconnected means the peer transport dropped mid-call.
	ErrTransportDisconnected = errors.New("transport disconnected")
	// ErrMalformedMessage covers unknown kinds and missing destinations.
	ErrMalformedMessage = errors.New("malformed message")
	// ErrDirectoryFull is returned when the connection directory sheds a new connection.
	ErrDirectoryFull = errors.New("connection directory full")
)
