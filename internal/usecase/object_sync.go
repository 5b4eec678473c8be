package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	digest "github.com/opencontainers/go-digest"
	"github.com/rs/zerolog/log"

	"github.com/liunix61/uptane-server/internal/domain"
)

const ObjectContentType = "application/octet-stream"

// ObjectContent is an open blob ready to be streamed to a client. The
// caller closes Body.
type ObjectContent struct {
	Body        io.ReadCloser
	Size        int64
	ContentType string
}

// ObjectSyncCoordinator keeps object rows and blobs in agreement. The row
// is the only presence signal on the read path: it is written UPLOADING
// before the blob and flipped to UPLOADED after it.
type ObjectSyncCoordinator struct {
	Namespaces NamespaceRepository
	Objects    ObjectRepository
	Blobs      BlobStore
}

// ParseDeclaredSize validates a client-declared content length. Missing,
// zero, negative and non-numeric values are rejected.
func ParseDeclaredSize(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("%w: content length is required", domain.ErrValidation)
	}
	size, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: content length %q is not a number", domain.ErrValidation, raw)
	}
	if size <= 0 {
		return 0, fmt.Errorf("%w: content length must be positive", domain.ErrValidation)
	}
	return size, nil
}

func (c *ObjectSyncCoordinator) Upload(ctx context.Context, namespaceID, objectID string, body io.Reader, declaredSize string) error {
	size, err := ParseDeclaredSize(declaredSize)
	if err != nil {
		return err
	}
	if _, err := activeNamespace(ctx, c.Namespaces, namespaceID); err != nil {
		if errors.Is(err, domain.ErrNamespaceNotFound) {
			return fmt.Errorf("%w: %w", domain.ErrValidation, err)
		}
		return err
	}
	key, err := domain.ObjectStorageKey(namespaceID, objectID)
	if err != nil {
		return err
	}

	if err := c.Objects.Upsert(ctx, domain.Object{
		NamespaceID: namespaceID,
		ObjectID:    objectID,
		Size:        size,
		Status:      domain.ObjectStatusUploading,
	}); err != nil {
		return fmt.Errorf("record upload: %w", err)
	}
	digester := digest.Canonical.Digester()
	if err := c.Blobs.Put(ctx, key, io.TeeReader(body, digester.Hash()), size); err != nil {
		log.Ctx(ctx).Warn().Err(err).
			Str("namespace_id", namespaceID).
			Str("object_id", objectID).
			Msg("blob write failed; object left uploading")
		return fmt.Errorf("write blob: %w", err)
	}
	if err := c.Objects.SetStatus(ctx, namespaceID, objectID, domain.ObjectStatusUploaded); err != nil {
		return fmt.Errorf("mark uploaded: %w", err)
	}
	log.Ctx(ctx).Debug().
		Str("namespace_id", namespaceID).
		Str("object_id", objectID).
		Int64("size", size).
		Str("digest", digester.Digest().String()).
		Msg("object stored")
	return nil
}

// Exists answers from the object row alone. An UPLOADING row counts.
func (c *ObjectSyncCoordinator) Exists(ctx context.Context, namespaceID, objectID string) (bool, error) {
	if _, err := activeNamespace(ctx, c.Namespaces, namespaceID); err != nil {
		if errors.Is(err, domain.ErrNamespaceNotFound) {
			return false, nil
		}
		return false, err
	}
	if _, err := c.Objects.Get(ctx, namespaceID, objectID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Download opens the blob behind an object row. A row without a readable
// blob, or whose blob size differs from the declared size, is a consistency
// fault; it is logged and never repaired here.
func (c *ObjectSyncCoordinator) Download(ctx context.Context, namespaceID, objectID string) (*ObjectContent, error) {
	if _, err := activeNamespace(ctx, c.Namespaces, namespaceID); err != nil {
		if errors.Is(err, domain.ErrNamespaceNotFound) {
			return nil, fmt.Errorf("%w: %w", domain.ErrNotFound, err)
		}
		return nil, err
	}
	key, err := domain.ObjectStorageKey(namespaceID, objectID)
	if err != nil {
		return nil, err
	}
	obj, err := c.Objects.Get(ctx, namespaceID, objectID)
	if err != nil {
		return nil, err
	}
	logger := log.Ctx(ctx).With().
		Str("namespace_id", namespaceID).
		Str("object_id", objectID).
		Str("storage_key", key).
		Logger()
	body, size, err := c.Blobs.Get(ctx, key)
	if err != nil {
		logger.Error().Err(err).Msg("object row present but blob unreadable")
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrConsistencyFault, key, err)
	}
	if size != obj.Size {
		_ = body.Close()
		logger.Error().Int64("row_size", obj.Size).Int64("blob_size", size).Msg("object blob size differs from row")
		return nil, fmt.Errorf("%w: %s holds %d bytes, row declares %d", domain.ErrConsistencyFault, key, size, obj.Size)
	}
	return &ObjectContent{Body: body, Size: size, ContentType: ObjectContentType}, nil
}
