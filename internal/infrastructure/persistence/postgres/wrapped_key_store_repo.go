package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/turtacn/ckms/internal/domain/models"
	"github.com/turtacn/ckms/internal/domain/repository"
)

// keyStoreRow is the gorm model backing the key_store table.
type keyStoreRow struct {
	Alias             string    `gorm:"column:id;primaryKey"`
	MasterAlias       string    `gorm:"column:master_alias"`
	PublicKeyDER      []byte    `gorm:"column:public_key"`
	WrappedPrivateKey []byte    `gorm:"column:private_key"`
	CertificateData   []byte    `gorm:"column:certificate_data"`
	CreatedBy         string    `gorm:"column:cr_by"`
	CreatedAt         time.Time `gorm:"column:cr_dtimes"`
	UpdatedBy         string    `gorm:"column:upd_by"`
	UpdatedAt         time.Time `gorm:"column:upd_dtimes"`
}

func (keyStoreRow) TableName() string { return "key_store" }

func (r keyStoreRow) toModel() *models.WrappedKey {
	return &models.WrappedKey{
		Alias:             r.Alias,
		MasterAlias:       r.MasterAlias,
		PublicKeyDER:      r.PublicKeyDER,
		WrappedPrivateKey: r.WrappedPrivateKey,
		CertificateData:   r.CertificateData,
		CreatedBy:         r.CreatedBy,
		CreatedAt:         r.CreatedAt,
		UpdatedBy:         r.UpdatedBy,
		UpdatedAt:         r.UpdatedAt,
	}
}

// WrappedKeyStoreRepository implements repository.WrappedKeyStore against
// PostgreSQL.
type WrappedKeyStoreRepository struct {
	db *gorm.DB
}

// NewWrappedKeyStoreRepository constructs a WrappedKeyStoreRepository.
func NewWrappedKeyStoreRepository(db *gorm.DB) *WrappedKeyStoreRepository {
	return &WrappedKeyStoreRepository{db: db}
}

func (r *WrappedKeyStoreRepository) FindByAlias(ctx context.Context, alias string) (*models.WrappedKey, error) {
	var row keyStoreRow
	err := r.db.WithContext(ctx).Where("id = ?", alias).First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return row.toModel(), nil
}

func (r *WrappedKeyStoreRepository) Insert(ctx context.Context, key models.WrappedKey) error {
	row := keyStoreRow{
		Alias:             key.Alias,
		MasterAlias:       key.MasterAlias,
		PublicKeyDER:      key.PublicKeyDER,
		WrappedPrivateKey: key.WrappedPrivateKey,
		CertificateData:   key.CertificateData,
		CreatedBy:         key.CreatedBy,
		CreatedAt:         key.CreatedAt,
		UpdatedBy:         key.UpdatedBy,
		UpdatedAt:         key.UpdatedAt,
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

var _ repository.WrappedKeyStore = (*WrappedKeyStoreRepository)(nil)
