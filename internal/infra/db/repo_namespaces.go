package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/liunix61/uptane-server/internal/domain"
)

type NamespaceRepository struct {
	db *gorm.DB
}

func NewNamespaceRepository(db *gorm.DB) *NamespaceRepository {
	return &NamespaceRepository{db: db}
}

// CreateWithMetadata inserts the namespace row and its metadata documents
// in one transaction. An empty ns.ID is filled with a fresh UUID.
func (r *NamespaceRepository) CreateWithMetadata(ctx context.Context, ns *domain.Namespace, docs []domain.Metadata) error {
	if r.db == nil {
		return errDBUnavailable
	}
	if ns.ID == "" {
		ns.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if ns.CreatedAt.IsZero() {
		ns.CreatedAt = now
	}
	ns.UpdatedAt = ns.CreatedAt
	if ns.Status == "" {
		ns.Status = domain.NamespaceStatusPendingCreate
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := NamespaceModel{
			ID:        ns.ID,
			Status:    string(ns.Status),
			CreatedAt: ns.CreatedAt,
			UpdatedAt: ns.UpdatedAt,
		}
		if err := tx.Create(&model).Error; err != nil {
			return fmt.Errorf("insert namespace: %w", err)
		}
		for _, doc := range docs {
			row := MetadataModel{
				NamespaceID: ns.ID,
				Repo:        string(doc.Repo),
				Role:        string(doc.Role),
				Version:     doc.Version,
				Document:    datatypes.JSON(copyBytes(doc.Document)),
				ExpiresAt:   doc.ExpiresAt,
				CreatedAt:   ns.CreatedAt,
			}
			if err := tx.Omit("Namespace").Create(&row).Error; err != nil {
				return fmt.Errorf("insert %s %s metadata: %w", doc.Repo, doc.Role, err)
			}
		}
		return nil
	})
}

func (r *NamespaceRepository) Get(ctx context.Context, id string) (*domain.Namespace, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model NamespaceModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	ns := namespaceFromModel(model)
	return &ns, nil
}

func (r *NamespaceRepository) List(ctx context.Context) ([]domain.Namespace, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []NamespaceModel
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Namespace, 0, len(models))
	for _, model := range models {
		out = append(out, namespaceFromModel(model))
	}
	return out, nil
}

// ListStale returns namespaces that have been in status since before cutoff.
func (r *NamespaceRepository) ListStale(ctx context.Context, status domain.NamespaceStatus, cutoff time.Time) ([]domain.Namespace, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []NamespaceModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", string(status), cutoff).
		Order("updated_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.Namespace, 0, len(models))
	for _, model := range models {
		out = append(out, namespaceFromModel(model))
	}
	return out, nil
}

func (r *NamespaceRepository) SetStatus(ctx context.Context, id string, status domain.NamespaceStatus) error {
	if r.db == nil {
		return errDBUnavailable
	}
	res := r.db.WithContext(ctx).
		Model(&NamespaceModel{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": string(status), "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes the namespace row together with its metadata and object
// rows. Missing rows are not an error so that retries converge.
func (r *NamespaceRepository) Delete(ctx context.Context, id string) error {
	if r.db == nil {
		return errDBUnavailable
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("namespace_id = ?", id).Delete(&ObjectModel{}).Error; err != nil {
			return fmt.Errorf("delete objects: %w", err)
		}
		if err := tx.Where("namespace_id = ?", id).Delete(&MetadataModel{}).Error; err != nil {
			return fmt.Errorf("delete metadata: %w", err)
		}
		if err := tx.Where("id = ?", id).Delete(&NamespaceModel{}).Error; err != nil {
			return fmt.Errorf("delete namespace: %w", err)
		}
		return nil
	})
}

// LatestMetadata returns the highest version of one role document.
func (r *NamespaceRepository) LatestMetadata(ctx context.Context, namespaceID string, repo domain.RepoKind, role domain.Role) (*domain.Metadata, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model MetadataModel
	err := r.db.WithContext(ctx).
		Where("namespace_id = ? AND repo = ? AND role = ?", namespaceID, string(repo), string(role)).
		Order("version DESC").
		First(&model).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &domain.Metadata{
		NamespaceID: model.NamespaceID,
		Repo:        domain.RepoKind(model.Repo),
		Role:        domain.Role(model.Role),
		Version:     model.Version,
		Document:    copyBytes(model.Document),
		ExpiresAt:   model.ExpiresAt,
		CreatedAt:   model.CreatedAt,
	}, nil
}

func namespaceFromModel(model NamespaceModel) domain.Namespace {
	return domain.Namespace{
		ID:        model.ID,
		Status:    domain.NamespaceStatus(model.Status),
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
}
