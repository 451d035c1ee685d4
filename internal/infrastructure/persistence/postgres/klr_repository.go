package postgres

import (
	"context"
	"encoding/json"

	"gorm.io/gorm"

	"github.com/turtacn/ckms/internal/domain/service"
	"github.com/turtacn/ckms/pkg/constants"
)

// klrEventRow is the gorm model backing the key lifecycle audit table.
type klrEventRow struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	EventType     string `gorm:"column:event_type"`
	ApplicationID string `gorm:"column:app_id"`
	ReferenceID   string `gorm:"column:ref_id"`
	Alias         string `gorm:"column:alias"`
	Timestamp     string `gorm:"column:event_timestamp"`
	Metadata      string `gorm:"column:metadata"`
}

func (klrEventRow) TableName() string { return "key_lifecycle_event" }

// KLRRepository implements service.KeyLifecycleRegistry against PostgreSQL.
// It is an alternate sink to the Kafka-backed registry: both can be wired
// behind a fan-out registry when both durability and stream consumption of
// key events are required.
type KLRRepository struct {
	db *gorm.DB
}

// NewKLRRepository constructs a KLRRepository.
func NewKLRRepository(db *gorm.DB) *KLRRepository {
	return &KLRRepository{db: db}
}

func (r *KLRRepository) LogEvent(ctx context.Context, event service.LifecycleEvent) error {
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return err
	}
	row := klrEventRow{
		EventType:     string(event.EventType),
		ApplicationID: event.ApplicationID,
		ReferenceID:   event.ReferenceID,
		Alias:         event.Alias,
		Timestamp:     event.Timestamp.Format(constants.ISO8601Layout),
		Metadata:      string(metadata),
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

var _ service.KeyLifecycleRegistry = (*KLRRepository)(nil)
