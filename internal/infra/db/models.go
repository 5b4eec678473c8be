package db

import (
	"time"

	"gorm.io/datatypes"
)

type NamespaceModel struct {
	ID        string    `gorm:"type:uuid;primaryKey"`
	Status    string    `gorm:"index;not null"`
	CreatedAt time.Time `gorm:"index;not null"`
	UpdatedAt time.Time `gorm:"index;not null"`
}

func (NamespaceModel) TableName() string { return "namespaces" }

type MetadataModel struct {
	ID          int64          `gorm:"primaryKey"`
	NamespaceID string         `gorm:"type:uuid;not null;uniqueIndex:idx_metadata_version,priority:1"`
	Repo        string         `gorm:"not null;uniqueIndex:idx_metadata_version,priority:2"`
	Role        string         `gorm:"not null;uniqueIndex:idx_metadata_version,priority:3"`
	Version     int            `gorm:"not null;uniqueIndex:idx_metadata_version,priority:4"`
	Document    datatypes.JSON `gorm:"not null"`
	ExpiresAt   time.Time      `gorm:"not null"`
	CreatedAt   time.Time      `gorm:"not null"`
	Namespace   NamespaceModel `gorm:"foreignKey:NamespaceID;constraint:OnDelete:CASCADE"`
}

func (MetadataModel) TableName() string { return "metadata" }

type ObjectModel struct {
	NamespaceID string         `gorm:"type:uuid;primaryKey"`
	ObjectID    string         `gorm:"primaryKey"`
	Size        int64          `gorm:"not null"`
	Status      string         `gorm:"not null"`
	CreatedAt   time.Time      `gorm:"not null"`
	UpdatedAt   time.Time      `gorm:"not null"`
	Namespace   NamespaceModel `gorm:"foreignKey:NamespaceID;constraint:OnDelete:CASCADE"`
}

func (ObjectModel) TableName() string { return "objects" }
