package db

import (
	"errors"

	"gorm.io/gorm"

	"github.com/liunix61/uptane-server/internal/domain"
)

var errDBUnavailable = errors.New("db unavailable")

// notFound maps gorm's missing-row error onto the domain sentinel.
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	return err
}

func copyBytes(in []byte) []byte {
	if in == nil {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}
