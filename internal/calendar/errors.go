package calendar

import (
	"fmt"
	"strconv"
)

// FetchError reports a feed that could not be downloaded: a transport
// failure, a timeout, or a non-2xx status (StatusCode set).
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetching %s: status %d", redactURL(e.URL), e.StatusCode)
	}
	return fmt.Sprintf("fetching %s: %v", redactURL(e.URL), e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError reports feed text that is not a well-formed calendar.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "parsing calendar: " + e.Err.Error() }

func (e *ParseError) Unwrap() error { return e.Err }

// LookupError reports a failed guest search.
type LookupError struct {
	Name string
	Err  error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("looking up guest %q: %v", e.Name, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

// CreateError reports a failed guest insert.
type CreateError struct {
	Name string
	Err  error
}

func (e *CreateError) Error() string {
	return fmt.Sprintf("creating guest %q: %v", e.Name, e.Err)
}

func (e *CreateError) Unwrap() error { return e.Err }

// StoreError reports a failed booking write.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *StoreError) Unwrap() error { return e.Err }

// RenderError reports an export that could not be produced because the
// bookings could not be read.
type RenderError struct {
	RoomID int
	Err    error
}

func (e *RenderError) Error() string {
	return "rendering room " + strconv.Itoa(e.RoomID) + ": " + e.Err.Error()
}

func (e *RenderError) Unwrap() error { return e.Err }
