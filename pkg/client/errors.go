package client

import "errors"

var (
	// ErrDaemonNotRunning means nothing is listening on the socket or address.
	ErrDaemonNotRunning = errors.New("daemon not running")

	// ErrPermissionDenied means the unix socket is not accessible to the
	// current user. The daemon grants access with --allow-non-root-access.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound means the daemon does not serve the path, usually because
	// it is older than the client.
	ErrNotFound = errors.New("404 not found")

	// ErrUnavailable means the daemon is up but the requested feature is
	// turned off, e.g. history without a historyPath.
	ErrUnavailable = errors.New("503 service unavailable")
)
