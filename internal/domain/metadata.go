package domain

import (
	"fmt"
	"time"
)

// RepoKind names one of the two independently keyed TUF repositories every
// namespace owns.
type RepoKind string

const (
	RepoImage    RepoKind = "image"
	RepoDirector RepoKind = "director"
)

// RepoKinds lists the repositories in the order they are bootstrapped.
var RepoKinds = []RepoKind{RepoImage, RepoDirector}

func ParseRepoKind(s string) (RepoKind, error) {
	switch RepoKind(s) {
	case RepoImage, RepoDirector:
		return RepoKind(s), nil
	default:
		return "", fmt.Errorf("%w: unknown repository %q", ErrValidation, s)
	}
}

type Role string

const (
	RoleRoot      Role = "root"
	RoleTargets   Role = "targets"
	RoleSnapshot  Role = "snapshot"
	RoleTimestamp Role = "timestamp"
)

// Roles lists the top-level TUF roles in canonical order.
var Roles = []Role{RoleRoot, RoleTargets, RoleSnapshot, RoleTimestamp}

// Metadata is one TUF role document of one repository.
type Metadata struct {
	NamespaceID string
	Repo        RepoKind
	Role        Role
	Version     int
	Document    []byte
	ExpiresAt   time.Time
	CreatedAt   time.Time
}
