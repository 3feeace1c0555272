package media

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

var storedNamePrefix = regexp.MustCompile(`^(\d+)-`)

// Namer issues stored names of the form "<millis>-<displayName>".
// Issued timestamps are strictly increasing, so two uploads of the
// same display name cannot collide even within a single millisecond.
type Namer struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewNamer creates a namer backed by the wall clock.
func NewNamer() *Namer {
	return &Namer{now: time.Now}
}

// Encode returns the stored name for a display name.
func (n *Namer) Encode(displayName string) string {
	n.mu.Lock()
	defer n.mu.Unlock()

	millis := n.now().UnixMilli()
	if millis <= n.last {
		millis = n.last + 1
	}
	n.last = millis

	return strconv.FormatInt(millis, 10) + "-" + displayName
}

// DecodeName recovers the display name from a stored name by stripping
// the timestamp prefix. Names without a prefix are returned unchanged.
func DecodeName(storedName string) string {
	if m := storedNamePrefix.FindString(storedName); m != "" {
		return storedName[len(m):]
	}
	return storedName
}

// NameTime recovers the creation instant encoded in a stored name.
func NameTime(storedName string) (time.Time, bool) {
	m := storedNamePrefix.FindStringSubmatch(storedName)
	if m == nil {
		return time.Time{}, false
	}
	millis, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(millis), true
}

// ValidateName rejects names that could escape the storage directory:
// parent-directory segments and path separators.
func ValidateName(name string) error {
	if name == "" {
		return ErrUnsafeName
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return ErrUnsafeName
	}
	return nil
}
