package domain

import "time"

type NamespaceStatus string

const (
	// NamespaceStatusPendingCreate is written together with the root metadata
	// and held until every key and blob side effect has completed.
	NamespaceStatusPendingCreate NamespaceStatus = "pending_create"
	NamespaceStatusActive        NamespaceStatus = "active"
	// NamespaceStatusPendingDelete hides the namespace from the read path
	// while key and blob cleanup runs.
	NamespaceStatusPendingDelete NamespaceStatus = "pending_delete"
)

type Namespace struct {
	ID        string
	Status    NamespaceStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (n Namespace) Active() bool {
	return n.Status == NamespaceStatusActive
}
