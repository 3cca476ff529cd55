package implementation

import (
	"context"
	"errors"

	"product-rec-agent/internal/model"
	"product-rec-agent/internal/repository/contract"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormBlobRepository struct {
	db *gorm.DB
}

func NewGormBlobRepository(db *gorm.DB) contract.BlobRepository {
	return &GormBlobRepository{db: db}
}

func (r *GormBlobRepository) Get(ctx context.Context, key string) ([]byte, error) {
	var m model.KVBlob
	if err := r.db.WithContext(ctx).Where("key = ?", key).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return m.Value, nil
}

func (r *GormBlobRepository) Put(ctx context.Context, key string, value []byte) error {
	m := model.KVBlob{Key: key, Value: value}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&m).Error
}
