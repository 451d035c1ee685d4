package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/turtacn/ckms/internal/domain/models"
	"github.com/turtacn/ckms/internal/domain/repository"
	"github.com/turtacn/ckms/pkg/errors"
)

// keyAliasRow is the gorm model backing the key_alias table.
type keyAliasRow struct {
	ApplicationID         string    `gorm:"column:app_id;primaryKey"`
	ReferenceID           string    `gorm:"column:ref_id;primaryKey"`
	Alias                 string    `gorm:"column:alias;primaryKey"`
	KeyGenerationTime     time.Time `gorm:"column:key_gen_time"`
	KeyExpiryTime         time.Time `gorm:"column:key_expiry_time"`
	CertificateThumbprint string    `gorm:"column:cert_thumbprint"`
	CreatedBy             string    `gorm:"column:cr_by"`
	CreatedAt             time.Time `gorm:"column:cr_dtimes"`
	UpdatedBy             string    `gorm:"column:upd_by"`
	UpdatedAt             time.Time `gorm:"column:upd_dtimes"`
}

func (keyAliasRow) TableName() string { return "key_alias" }

func (r keyAliasRow) toModel() models.KeyAlias {
	return models.KeyAlias{
		ApplicationID:         r.ApplicationID,
		ReferenceID:           r.ReferenceID,
		Alias:                 r.Alias,
		KeyGenerationTime:     r.KeyGenerationTime,
		KeyExpiryTime:         r.KeyExpiryTime,
		CertificateThumbprint: r.CertificateThumbprint,
		CreatedBy:             r.CreatedBy,
		CreatedAt:             r.CreatedAt,
		UpdatedBy:             r.UpdatedBy,
		UpdatedAt:             r.UpdatedAt,
	}
}

func fromModel(m models.KeyAlias) keyAliasRow {
	return keyAliasRow{
		ApplicationID:         m.ApplicationID,
		ReferenceID:           m.ReferenceID,
		Alias:                 m.Alias,
		KeyGenerationTime:     m.KeyGenerationTime,
		KeyExpiryTime:         m.KeyExpiryTime,
		CertificateThumbprint: m.CertificateThumbprint,
		CreatedBy:             m.CreatedBy,
		CreatedAt:             m.CreatedAt,
		UpdatedBy:             m.UpdatedBy,
		UpdatedAt:             m.UpdatedAt,
	}
}

// AliasIndexRepository implements repository.AliasIndex against PostgreSQL.
type AliasIndexRepository struct {
	db *gorm.DB
}

// NewAliasIndexRepository constructs an AliasIndexRepository.
func NewAliasIndexRepository(db *gorm.DB) *AliasIndexRepository {
	return &AliasIndexRepository{db: db}
}

func (r *AliasIndexRepository) FindByScope(ctx context.Context, scope models.Scope) ([]models.KeyAlias, error) {
	var rows []keyAliasRow
	err := r.db.WithContext(ctx).
		Where("app_id = ? AND ref_id = ?", scope.ApplicationID, scope.ReferenceID).
		Order("key_gen_time DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	aliases := make([]models.KeyAlias, 0, len(rows))
	for _, row := range rows {
		aliases = append(aliases, row.toModel())
	}
	return aliases, nil
}

func (r *AliasIndexRepository) FindCurrent(ctx context.Context, scope models.Scope, asOf time.Time) (*models.KeyAlias, error) {
	var rows []keyAliasRow
	err := r.db.WithContext(ctx).
		Where("app_id = ? AND ref_id = ? AND key_gen_time <= ? AND key_expiry_time > ?", scope.ApplicationID, scope.ReferenceID, asOf, asOf).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		return nil, nil
	case 1:
		alias := rows[0].toModel()
		return &alias, nil
	default:
		return nil, errors.ErrNoUniqueAlias(scope.ApplicationID, scope.ReferenceID, len(rows))
	}
}

// Insert records a newly minted alias. The (app_id, ref_id, alias) primary
// key and the unique constraint on (app_id, ref_id, key_gen_time) that the
// key_alias migration defines make a second alias with the same generation
// instant fail at the database. An alias generated at a different instant
// inside an existing window is not rejected.
func (r *AliasIndexRepository) Insert(ctx context.Context, alias models.KeyAlias) error {
	row := fromModel(alias)
	return r.db.WithContext(ctx).Create(&row).Error
}

var _ repository.AliasIndex = (*AliasIndexRepository)(nil)
