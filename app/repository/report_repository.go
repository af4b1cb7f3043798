package repository

import (
	"gorm.io/gorm"

	"github.com/ManuelReschke/ReportFox/app/models"
)

type reportRepository struct {
	db *gorm.DB
}

// NewReportRepository creates a new report repository instance
func NewReportRepository(db *gorm.DB) ReportRepository {
	return &reportRepository{db: db}
}

func (r *reportRepository) Create(report *models.Report) error {
	return r.db.Create(report).Error
}

func (r *reportRepository) GetByID(id uint) (*models.Report, error) {
	var report models.Report
	if err := r.db.First(&report, id).Error; err != nil {
		return nil, err
	}
	return &report, nil
}

// GetActiveByID hides deactivated reports from the catalogue.
func (r *reportRepository) GetActiveByID(id uint) (*models.Report, error) {
	var report models.Report
	if err := r.db.Where("active = ?", true).First(&report, id).Error; err != nil {
		return nil, err
	}
	return &report, nil
}

// ListActive returns the catalogue, optionally narrowed to a category.
func (r *reportRepository) ListActive(category string) ([]models.Report, error) {
	var reports []models.Report
	q := r.db.Where("active = ?", true)
	if category != "" {
		q = q.Where("category = ?", category)
	}
	err := q.Order("created_at DESC").Find(&reports).Error
	return reports, err
}

func (r *reportRepository) Update(report *models.Report) error {
	return r.db.Save(report).Error
}
