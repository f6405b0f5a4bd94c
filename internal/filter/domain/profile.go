package domain

import "fmt"

// ReferenceKind classifies a profile's raw list reference.
type ReferenceKind uint8

const (
	ReferenceNone ReferenceKind = iota
	ReferenceRemote
	ReferenceLocal
	ReferenceAlias
)

func (k ReferenceKind) String() string {
	switch k {
	case ReferenceNone:
		return "none"
	case ReferenceRemote:
		return "remote"
	case ReferenceLocal:
		return "local"
	case ReferenceAlias:
		return "alias"
	default:
		return fmt.Sprintf("ReferenceKind(%d)", k)
	}
}

// ProfileState is the source-manager state of one profile.
//
//	Unconfigured                         (empty reference)
//	Unresolved -> Resolving -> Fresh     (list parsed and published)
//	                        -> Fetching  (remote download in progress)
//	                        -> Failed    (bad reference, fetch exhausted, missing file)
type ProfileState uint8

const (
	StateUnconfigured ProfileState = iota
	StateUnresolved
	StateResolving
	StateFetching
	StateFresh
	StateFailed
)

func (s ProfileState) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateUnresolved:
		return "unresolved"
	case StateResolving:
		return "resolving"
	case StateFetching:
		return "fetching"
	case StateFresh:
		return "fresh"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("ProfileState(%d)", s)
	}
}
