/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package archive

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrResponseTooLarge is returned when a response body exceeds the
// configured size limit.
var ErrResponseTooLarge = errors.New("archive response too large")

// StatusError is returned when the archive answers with a non-2xx status.
// Callers wrap it with the failed operation.
type StatusError struct {
	Op         string // "search" or "metadata"
	StatusCode int
	Body       string // first bytes of the response body
}

func (e *StatusError) Error() string {
	text := http.StatusText(e.StatusCode)
	if text == "" {
		text = "unexpected status"
	}
	return fmt.Sprintf("HTTP %d %s", e.StatusCode, text)
}
