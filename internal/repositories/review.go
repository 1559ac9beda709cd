package repositories

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// ReviewDirectory is the read-only view of the rating service. The
// reviews table is owned by that service; this side only aggregates.
type ReviewDirectory struct {
	db *gorm.DB
}

func NewReviewDirectory(db *gorm.DB) *ReviewDirectory {
	return &ReviewDirectory{db: db}
}

// AverageRating returns the mean rating and review count for a
// contractor. A contractor with no reviews yields (0, 0, nil).
func (r *ReviewDirectory) AverageRating(ctx context.Context, contractorID uint) (float64, int, error) {
	var row struct {
		Avg   float64
		Count int
	}
	err := r.db.WithContext(ctx).
		Raw("SELECT COALESCE(AVG(rating), 0) AS avg, COUNT(*) AS count FROM reviews WHERE contractor_id = ?", contractorID).
		Scan(&row).Error
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read contractor rating: %w", err)
	}
	return row.Avg, row.Count, nil
}
