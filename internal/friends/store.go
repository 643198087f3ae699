package friends

import (
	"context"
	"sync"

	"gorm.io/gorm"

	"github.com/tankmates/tankmates/internal/rest"
)

// FriendRecord is the persisted shape of one directory entry.
type FriendRecord struct {
	OwnerID  string `gorm:"primaryKey"`
	FriendID string `gorm:"primaryKey"`
	Nickname string
}

func (FriendRecord) TableName() string { return "friend_cache" }

// GormStore persists the directory in a relational cache table.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&FriendRecord{}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Replace(ctx context.Context, ownerID string, list []rest.Friend) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("owner_id = ?", ownerID).Delete(&FriendRecord{}).Error; err != nil {
			return err
		}
		if len(list) == 0 {
			return nil
		}
		records := make([]FriendRecord, 0, len(list))
		for _, f := range list {
			records = append(records, FriendRecord{OwnerID: ownerID, FriendID: f.ID, Nickname: f.Nickname})
		}
		return tx.Create(&records).Error
	})
}

func (s *GormStore) List(ctx context.Context, ownerID string) ([]rest.Friend, error) {
	var records []FriendRecord
	if err := s.db.WithContext(ctx).Where("owner_id = ?", ownerID).Find(&records).Error; err != nil {
		return nil, err
	}
	out := make([]rest.Friend, 0, len(records))
	for _, r := range records {
		out = append(out, rest.Friend{ID: r.FriendID, Nickname: r.Nickname})
	}
	return out, nil
}

// MemoryStore backs the directory when no database is configured.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string][]rest.Friend
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]rest.Friend)}
}

func (s *MemoryStore) Replace(_ context.Context, ownerID string, list []rest.Friend) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[ownerID] = append([]rest.Friend{}, list...)
	return nil
}

func (s *MemoryStore) List(_ context.Context, ownerID string) ([]rest.Friend, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]rest.Friend{}, s.data[ownerID]...), nil
}
