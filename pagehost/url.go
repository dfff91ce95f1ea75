package pagehost

import (
	"errors"
	"fmt"
	"net/url"
)

// ErrUnsafeURL is returned for page URLs the host refuses to open.
var ErrUnsafeURL = errors.New("pagehost: unsafe page url")

// ValidatePageURL checks that raw is an absolute http or https URL with a
// hostname. Loopback and private hosts are allowed: the daemon is local and
// users observe local pages too.
func ValidatePageURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsafeURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrUnsafeURL, u.Scheme)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("%w: no host", ErrUnsafeURL)
	}
	return nil
}
