// Package sqlite contains gorm/SQLite implementations of repository interfaces,
// used for local runs without PostgreSQL.
package sqlite

import (
	"context"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type ownerRow struct {
	Identity    int64     `gorm:"primaryKey;autoIncrement:false"`
	DisplayName *string   `gorm:"size:64;uniqueIndex"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

func (ownerRow) TableName() string { return "owners" }

type reminderRow struct {
	ID            int64     `gorm:"primaryKey;autoIncrement:false"`
	Text          string    `gorm:"type:text;not null"`
	FireAt        time.Time `gorm:"index;not null"`
	OwnerIdentity int64     `gorm:"index;not null"`
	Owner         ownerRow  `gorm:"foreignKey:OwnerIdentity;references:Identity;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
}

func (reminderRow) TableName() string { return "reminders" }

type jobRow struct {
	ID             string  `gorm:"primaryKey;size:36"`
	ReminderID     *int64  `gorm:"index"`
	DedupeKey      string  `gorm:"uniqueIndex;not null"`
	TargetIdentity int64   `gorm:"not null"`
	MessageText    string  `gorm:"type:text;not null"`
	FireAt         time.Time
	RunAt          time.Time `gorm:"index"`
	State          string    `gorm:"index;not null;default:pending"`
	Attempts       int       `gorm:"not null;default:0"`
	LastError      string    `gorm:"not null;default:''"`
	LockedUntil    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (jobRow) TableName() string { return "delivery_jobs" }

// seqRow backs reminder id reservation; SQLite has no sequences.
type seqRow struct {
	Name  string `gorm:"primaryKey"`
	Value int64  `gorm:"not null"`
}

func (seqRow) TableName() string { return "sequences" }

// Open opens (or creates) a SQLite database and migrates the schema.
// Foreign keys are enforced on every connection.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(withForeignKeys(dsn)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&ownerRow{}, &reminderRow{}, &jobRow{}, &seqRow{}); err != nil {
		return nil, err
	}
	return db, nil
}

// withForeignKeys adds the driver flag that turns on foreign key checks
// unless the DSN already sets it.
func withForeignKeys(dsn string) string {
	if strings.Contains(dsn, "_fk=") || strings.Contains(dsn, "_foreign_keys=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&_foreign_keys=1"
	}
	return dsn + "?_foreign_keys=1"
}

// Ping checks the underlying connection.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// utc keeps stored timestamps comparable as text.
func utc(t time.Time) time.Time { return t.UTC() }
