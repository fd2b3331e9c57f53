package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// CardStatus enumerates the two states a credit card can be in.
type CardStatus string

const (
	StatusActive  CardStatus = "active"
	StatusBlocked CardStatus = "blocked"
)

// ErrNotFound is returned when no cardholder matches the lookup key.
var ErrNotFound = errors.New("cardholder not found")

// Cardholder maps a phone number to a cardholder identity and card status.
// UpdatedAt is maintained by status mutations only: the idempotent no-op path
// never writes, so the timestamp stays untouched there.
type Cardholder struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	Username    string     `gorm:"type:varchar(100);not null;uniqueIndex"`
	PhoneNumber string     `gorm:"type:varchar(20);not null;uniqueIndex"`
	CardNumber  string     `gorm:"type:varchar(19);not null"`
	Status      CardStatus `gorm:"type:varchar(10);not null;default:active"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName keeps the table name the schema was provisioned with.
func (Cardholder) TableName() string {
	return "cardholders"
}

// LastFour returns the final 4 characters of the stored card number, the only
// part ever surfaced externally.
func (c *Cardholder) LastFour() string {
	if len(c.CardNumber) < 4 {
		return c.CardNumber
	}
	return c.CardNumber[len(c.CardNumber)-4:]
}

// Store provides access to cardholder accounts.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the cardholders table.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&Cardholder{})
}

// FindByPhone looks up a cardholder by exact phone number.
func (s *Store) FindByPhone(ctx context.Context, phone string) (*Cardholder, error) {
	var ch Cardholder
	err := s.db.WithContext(ctx).Where("phone_number = ?", phone).First(&ch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// Create inserts a new cardholder. Uniqueness violations on username or phone
// number surface as the driver's constraint error.
func (s *Store) Create(ctx context.Context, ch *Cardholder) error {
	return s.db.WithContext(ctx).Create(ch).Error
}

// SetStatus persists a status transition and refreshes UpdatedAt. Callers are
// expected to have checked for the no-op case already.
func (s *Store) SetStatus(ctx context.Context, ch *Cardholder, status CardStatus) error {
	ch.Status = status
	ch.UpdatedAt = time.Now().UTC()
	return s.db.WithContext(ctx).Model(ch).Select("status", "updated_at").Updates(ch).Error
}

// Ping verifies database reachability with a trivial round-trip.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
