package domain

import (
	"fmt"
	"strings"
)

// ResourceType classifies an intercepted request.
type ResourceType uint8

const (
	ResourceOther ResourceType = iota
	ResourceDocument
	ResourceSubdocument
	ResourceStylesheet
	ResourceScript
	ResourceImage
	ResourceObject
	ResourceXHR
)

var resourceTypeNames = [...]string{
	ResourceOther:       "other",
	ResourceDocument:    "document",
	ResourceSubdocument: "subdocument",
	ResourceStylesheet:  "stylesheet",
	ResourceScript:      "script",
	ResourceImage:       "image",
	ResourceObject:      "object",
	ResourceXHR:         "xhr",
}

// AllResourceTypes lists every ResourceType in declaration order.
func AllResourceTypes() []ResourceType {
	out := make([]ResourceType, len(resourceTypeNames))
	for i := range resourceTypeNames {
		out[i] = ResourceType(i)
	}
	return out
}

// String returns the tag used in rule lists and by the host.
func (t ResourceType) String() string {
	if int(t) < len(resourceTypeNames) {
		return resourceTypeNames[t]
	}
	return fmt.Sprintf("ResourceType(%d)", t)
}

// ParseResourceType converts a tag into a ResourceType (case-insensitive).
// "xmlhttprequest" is accepted as an alias for "xhr".
func ParseResourceType(s string) (ResourceType, error) {
	tag := strings.ToLower(strings.TrimSpace(s))
	if tag == "xmlhttprequest" {
		return ResourceXHR, nil
	}
	for i, name := range resourceTypeNames {
		if name == tag {
			return ResourceType(i), nil
		}
	}
	return ResourceOther, fmt.Errorf("unsupported resource type: %q", s)
}

// TypeSet is a set of resource types. The zero value is the empty set.
type TypeSet uint16

// NewTypeSet builds a set from the given types.
func NewTypeSet(types ...ResourceType) TypeSet {
	var s TypeSet
	for _, t := range types {
		s = s.With(t)
	}
	return s
}

// With returns s with t added.
func (s TypeSet) With(t ResourceType) TypeSet { return s | 1<<t }

// Contains reports whether t is a member of s.
func (s TypeSet) Contains(t ResourceType) bool { return s&(1<<t) != 0 }

// Empty reports whether s has no members.
func (s TypeSet) Empty() bool { return s == 0 }

// Types returns the members of s in declaration order.
func (s TypeSet) Types() []ResourceType {
	var out []ResourceType
	for _, t := range AllResourceTypes() {
		if s.Contains(t) {
			out = append(out, t)
		}
	}
	return out
}

func (s TypeSet) String() string {
	types := s.Types()
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = t.String()
	}
	return strings.Join(parts, "|")
}
