package model

import (
	"fmt"
	"math"

	"gorm.io/gorm"
)

// Annotation is one picked coordinate inside a tomogram
type Annotation struct {
	AnnotationID int64   `gorm:"column:annotation_id;primaryKey;autoIncrement"`
	TomoID       int64   `gorm:"column:tomo_id;index"`
	CoordX       float64 `gorm:"column:coord_x;not null"`
	CoordY       float64 `gorm:"column:coord_y;not null"`
	CoordZ       float64 `gorm:"column:coord_z;not null"`
}

func (Annotation) TableName() string {
	return "annotations"
}

// BeforeCreate rejects coordinates Postgres would store but no query could use.
func (a *Annotation) BeforeCreate(tx *gorm.DB) error {
	for _, v := range []float64{a.CoordX, a.CoordY, a.CoordZ} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("annotation for tomo_id=%d has non-finite coordinate", a.TomoID)
		}
	}
	return nil
}
