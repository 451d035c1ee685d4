package postgres

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/turtacn/ckms/internal/domain/models"
	"github.com/turtacn/ckms/internal/domain/repository"
)

// keyPolicyRow is the gorm model backing the key_policy table.
type keyPolicyRow struct {
	ApplicationID  string `gorm:"column:app_id;primaryKey"`
	ValidityDays   int    `gorm:"column:validity_days"`
	PreExpireDays  int    `gorm:"column:pre_expire_days"`
	PostExpireDays int    `gorm:"column:post_expire_days"`
	AccessAllowed  string `gorm:"column:access_allowed"` // comma-separated operation list
	IsActive       bool   `gorm:"column:is_active"`
	CreatedBy      string `gorm:"column:cr_by"`
	CreatedAt      string `gorm:"column:cr_dtimes"`
	UpdatedBy      string `gorm:"column:upd_by"`
	UpdatedAt      string `gorm:"column:upd_dtimes"`
}

func (keyPolicyRow) TableName() string { return "key_policy" }

func (r keyPolicyRow) toModel() *models.KeyPolicy {
	var ops []models.KeyOperation
	for _, op := range strings.Split(r.AccessAllowed, ",") {
		op = strings.TrimSpace(op)
		if op != "" {
			ops = append(ops, models.KeyOperation(op))
		}
	}
	return &models.KeyPolicy{
		ApplicationID:  r.ApplicationID,
		ValidityDays:   r.ValidityDays,
		PreExpireDays:  r.PreExpireDays,
		PostExpireDays: r.PostExpireDays,
		AccessAllowed:  ops,
		IsActive:       r.IsActive,
		CreatedBy:      r.CreatedBy,
		CreatedAt:      r.CreatedAt,
		UpdatedBy:      r.UpdatedBy,
		UpdatedAt:      r.UpdatedAt,
	}
}

// PolicyStoreRepository implements repository.PolicyStore against PostgreSQL.
type PolicyStoreRepository struct {
	db *gorm.DB
}

// NewPolicyStoreRepository constructs a PolicyStoreRepository.
func NewPolicyStoreRepository(db *gorm.DB) *PolicyStoreRepository {
	return &PolicyStoreRepository{db: db}
}

func (r *PolicyStoreRepository) FindByApplication(ctx context.Context, applicationID string) (*models.KeyPolicy, error) {
	var row keyPolicyRow
	err := r.db.WithContext(ctx).Where("app_id = ?", applicationID).First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return row.toModel(), nil
}

var _ repository.PolicyStore = (*PolicyStoreRepository)(nil)
