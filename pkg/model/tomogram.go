package model

import "time"

// Tomogram is a named reconstructed volume. TomoName is the idempotence key
// used by ingestion.
type Tomogram struct {
	TomoID        int64     `gorm:"column:tomo_id;primaryKey;autoIncrement"`
	TomoName      string    `gorm:"column:tomo_name;unique;not null;index"`
	RawVolumePath string    `gorm:"column:raw_volume_path;not null"`
	DatasetID     *string   `gorm:"column:dataset_id"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`

	Annotations []Annotation `gorm:"foreignKey:TomoID;references:TomoID;constraint:OnDelete:CASCADE"`
}

func (Tomogram) TableName() string {
	return "tomograms"
}
