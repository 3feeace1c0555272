// Package httprange resolves HTTP Range headers against a known
// resource size.
package httprange

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnsatisfiable reports a syntactically valid range that lies
// outside the resource; the handler answers it with a 416.
var ErrUnsatisfiable = errors.New("range not satisfiable")

// Window is a resolved byte range within a resource of Total bytes.
// Start and End are inclusive.
type Window struct {
	Start int64
	End   int64
	Total int64
}

// Length returns the number of bytes in the window.
func (w Window) Length() int64 { return w.End - w.Start + 1 }

// ContentRange formats the Content-Range header value for a 206.
func (w Window) ContentRange() string {
	return fmt.Sprintf("bytes %d-%d/%d", w.Start, w.End, w.Total)
}

// Unsatisfiable formats the Content-Range header value for a 416.
func Unsatisfiable(total int64) string {
	return fmt.Sprintf("bytes */%d", total)
}

// Resolve parses a Range header of the form "bytes=<start>-[<end>]"
// against the total resource size. It returns ok=false when the header
// is absent or not understood, in which case the full content is
// served; a server is free to ignore Range headers it cannot parse.
// An omitted end resolves to total-1, an end past the resource is
// clamped, and a start past the resource or beyond the end is rejected
// with ErrUnsatisfiable.
func Resolve(header string, total int64) (Window, bool, error) {
	spec, found := strings.CutPrefix(header, "bytes=")
	if header == "" || !found {
		return Window{}, false, nil
	}
	// Multi-range requests are not supported.
	if strings.Contains(spec, ",") {
		return Window{}, false, nil
	}

	startStr, endStr, found := strings.Cut(spec, "-")
	if !found || startStr == "" {
		return Window{}, false, nil
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil {
		return Window{}, false, nil
	}

	end := total - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil {
			return Window{}, false, nil
		}
		if end > total-1 {
			end = total - 1
		}
	}

	if start >= total || start > end {
		return Window{}, false, ErrUnsatisfiable
	}

	return Window{Start: start, End: end, Total: total}, true, nil
}
