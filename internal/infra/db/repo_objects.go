package db

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/liunix61/uptane-server/internal/domain"
)

type ObjectRepository struct {
	db *gorm.DB
}

func NewObjectRepository(db *gorm.DB) *ObjectRepository {
	return &ObjectRepository{db: db}
}

// Upsert creates the object row or overwrites size and status of an
// existing one.
func (r *ObjectRepository) Upsert(ctx context.Context, obj domain.Object) error {
	if r.db == nil {
		return errDBUnavailable
	}
	now := time.Now().UTC()
	model := ObjectModel{
		NamespaceID: obj.NamespaceID,
		ObjectID:    obj.ObjectID,
		Size:        obj.Size,
		Status:      string(obj.Status),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return r.db.WithContext(ctx).
		Omit("Namespace").
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "namespace_id"}, {Name: "object_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"size", "status", "updated_at"}),
		}).
		Create(&model).Error
}

func (r *ObjectRepository) SetStatus(ctx context.Context, namespaceID, objectID string, status domain.ObjectStatus) error {
	if r.db == nil {
		return errDBUnavailable
	}
	res := r.db.WithContext(ctx).
		Model(&ObjectModel{}).
		Where("namespace_id = ? AND object_id = ?", namespaceID, objectID).
		Updates(map[string]any{"status": string(status), "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ObjectRepository) Get(ctx context.Context, namespaceID, objectID string) (*domain.Object, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model ObjectModel
	err := r.db.WithContext(ctx).
		Where("namespace_id = ? AND object_id = ?", namespaceID, objectID).
		First(&model).Error
	if err != nil {
		return nil, notFound(err)
	}
	obj := objectFromModel(model)
	return &obj, nil
}

func (r *ObjectRepository) ListByNamespace(ctx context.Context, namespaceID string) ([]domain.Object, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []ObjectModel
	err := r.db.WithContext(ctx).
		Where("namespace_id = ?", namespaceID).
		Order("object_id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.Object, 0, len(models))
	for _, model := range models {
		out = append(out, objectFromModel(model))
	}
	return out, nil
}

func objectFromModel(model ObjectModel) domain.Object {
	return domain.Object{
		NamespaceID: model.NamespaceID,
		ObjectID:    model.ObjectID,
		Size:        model.Size,
		Status:      domain.ObjectStatus(model.Status),
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}
}
