package model

import "time"

type KVBlob struct {
	Key       string    `gorm:"type:text;primaryKey"`
	Value     []byte    `gorm:"type:bytea;not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (KVBlob) TableName() string {
	return "kv_blobs"
}
