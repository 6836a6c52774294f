// Package connections provides database operations for remote connections.
// Credentials are encrypted with the credential codec before they reach the
// database.
package connections

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/mrlokans/cardsync/internal/crypto"
	"github.com/mrlokans/cardsync/internal/entities"
)

// ErrConnectionNotFound is returned when no connection matches.
var ErrConnectionNotFound = errors.New("connection not found")

const maxTestMessageLength = 500

type Repository struct {
	db    *gorm.DB
	codec *crypto.CredentialCodec
}

func NewRepository(db *gorm.DB, codec *crypto.CredentialCodec) *Repository {
	return &Repository{db: db, codec: codec}
}

// CreateConnection stores a new connection with its credentials encrypted.
func (r *Repository) CreateConnection(ctx context.Context, conn *entities.Connection, creds crypto.Credentials) error {
	blob, err := r.codec.Encrypt(creds)
	if err != nil {
		return err
	}
	conn.Credentials = blob
	return r.db.WithContext(ctx).Create(conn).Error
}

// SaveConnection updates connection settings without touching credentials.
func (r *Repository) SaveConnection(ctx context.Context, conn *entities.Connection) error {
	return r.db.WithContext(ctx).Omit("Credentials").Save(conn).Error
}

func (r *Repository) GetConnection(ctx context.Context, id uint) (*entities.Connection, error) {
	var conn entities.Connection
	err := r.db.WithContext(ctx).First(&conn, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrConnectionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

func (r *Repository) GetConnectionByName(ctx context.Context, name string) (*entities.Connection, error) {
	var conn entities.Connection
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&conn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrConnectionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

func (r *Repository) ListConnections(ctx context.Context) ([]entities.Connection, error) {
	var conns []entities.Connection
	err := r.db.WithContext(ctx).Order("name ASC").Find(&conns).Error
	return conns, err
}

// RotateCredentials replaces the stored credentials of a connection.
func (r *Repository) RotateCredentials(ctx context.Context, id uint, creds crypto.Credentials) error {
	blob, err := r.codec.Encrypt(creds)
	if err != nil {
		return err
	}
	result := r.db.WithContext(ctx).Model(&entities.Connection{}).
		Where("id = ?", id).
		Update("credentials", datatypes.JSONMap(blob))
	if result.Error != nil {
		return fmt.Errorf("failed to rotate credentials: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrConnectionNotFound
	}
	return nil
}

// Credentials decrypts the credentials of a loaded connection. A blob that
// cannot be decrypted yields an empty set.
func (r *Repository) Credentials(conn *entities.Connection) crypto.Credentials {
	return r.codec.Decrypt(conn.Credentials)
}

// RecordTestResult stores the outcome of a connection test.
func (r *Repository) RecordTestResult(ctx context.Context, id uint, ok bool, message string) error {
	if len(message) > maxTestMessageLength {
		message = message[:maxTestMessageLength]
	}
	return r.db.WithContext(ctx).Model(&entities.Connection{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_tested_at":    time.Now(),
			"last_test_ok":      ok,
			"last_test_message": message,
		}).Error
}
