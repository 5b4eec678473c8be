package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type ObjectStatus string

const (
	ObjectStatusUploading ObjectStatus = "UPLOADING"
	ObjectStatusUploaded  ObjectStatus = "UPLOADED"
)

// SummaryObjectID is stored unsharded directly under the namespace.
const SummaryObjectID = "summary"

// objectShardLen is the length of the fan-out directory taken from the front
// of an object id.
const objectShardLen = 2

const rootCABlobName = "root-ca.crt"

type Object struct {
	NamespaceID string
	ObjectID    string
	Size        int64
	Status      ObjectStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ObjectIDFromParts joins the caller-supplied prefix and suffix into an
// object id. The prefix must be exactly the shard length so that the
// storage key splits back at the same place.
func ObjectIDFromParts(prefix, suffix string) (string, error) {
	if len(prefix) != objectShardLen {
		return "", fmt.Errorf("%w: object prefix must be %d characters", ErrValidation, objectShardLen)
	}
	if suffix == "" {
		return "", fmt.Errorf("%w: object suffix is required", ErrValidation)
	}
	id := prefix + suffix
	if id == SummaryObjectID {
		return "", fmt.Errorf("%w: %s is only addressable through the summary route", ErrValidation, SummaryObjectID)
	}
	if err := ValidateObjectID(id); err != nil {
		return "", err
	}
	return id, nil
}

func ValidateObjectID(id string) error {
	if id == SummaryObjectID {
		return nil
	}
	if len(id) <= objectShardLen {
		return fmt.Errorf("%w: object id too short", ErrValidation)
	}
	if strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return fmt.Errorf("%w: object id contains path separators", ErrValidation)
	}
	return nil
}

// ObjectStorageKey maps an object to its blob key. Sharded ids become
// {namespace_id}/{id[:2]}/{id[2:]}; the summary object becomes
// {namespace_id}/summary.
func ObjectStorageKey(namespaceID, objectID string) (string, error) {
	if namespaceID == "" {
		return "", errors.New("namespace id is required")
	}
	if err := ValidateObjectID(objectID); err != nil {
		return "", err
	}
	if objectID == SummaryObjectID {
		return namespaceID + "/" + SummaryObjectID, nil
	}
	return namespaceID + "/" + objectID[:objectShardLen] + "/" + objectID[objectShardLen:], nil
}

// RootCABlobKey is where the namespace root CA certificate is kept.
func RootCABlobKey(namespaceID string) string {
	return namespaceID + "/" + rootCABlobName
}
