package domain

import (
	"fmt"
	"net/url"
)

// RequestEvent describes one intercepted request.
type RequestEvent struct {
	URL  string
	Type ResourceType
}

// NewRequestEvent builds an event from the host's string type tag.
func NewRequestEvent(rawURL, typeTag string) (RequestEvent, error) {
	t, err := ParseResourceType(typeTag)
	if err != nil {
		return RequestEvent{}, err
	}
	return RequestEvent{URL: rawURL, Type: t}, nil
}

// ParsedURL parses the event URL. Only absolute URLs are accepted.
func (e RequestEvent) ParsedURL() (*url.URL, error) {
	u, err := url.Parse(e.URL)
	if err != nil {
		return nil, err
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("url %q is not absolute", e.URL)
	}
	return u, nil
}
