package devserver

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gorm.io/gorm"
)

var ErrUserNotFound = errors.New("devserver: user not found")

// User is one account row. The dev broker seeds accounts lazily so any
// userName a client presents becomes a playable account.
type User struct {
	ID         string `gorm:"primaryKey;column:user_id" json:"id"`
	Nickname   string `gorm:"column:nickname" json:"nickname"`
	FishImage  string `gorm:"column:main_fish_image" json:"mainFishImage"`
	Level      int    `gorm:"column:level" json:"level"`
	CurExp     int    `gorm:"column:cur_exp" json:"curExp"`
	FishTicket int    `gorm:"column:fish_ticket" json:"fishTicket"`
}

func (User) TableName() string { return "dev_users" }

// ExpOutcome is the post-award level state returned from ExpUp.
type ExpOutcome struct {
	CurExp         int     `json:"curExp"`
	ExpToNextLevel int     `json:"expToNextLevel"`
	ExpProgress    float64 `json:"expProgress"`
	UserLevel      int     `json:"userLevel"`
	Message        string  `json:"message"`
}

// UserStore is the account backend. Friendship in the dev broker is total:
// everyone except the owner is a friend.
type UserStore interface {
	Ensure(ctx context.Context, id string) (User, error)
	Get(ctx context.Context, id string) (User, error)
	ExpUp(ctx context.Context, id string, earnedExp int) (ExpOutcome, error)
	Ticket(ctx context.Context, id string) (int, error)
	Friends(ctx context.Context, ownerID string) ([]User, error)
}

// expToNext is the flat dev leveling curve.
func expToNext(level int) int { return 100 * level }

const levelUpTickets = 3

func seedUser(id string) User {
	return User{
		ID:        id,
		Nickname:  id,
		FishImage: "/fish/clownfish.png",
		Level:     1,
	}
}

// applyExp folds an award into the user, carrying overflow across level-ups,
// and reports the outcome. Shared by both store implementations.
func applyExp(u *User, earnedExp int) ExpOutcome {
	before := u.Level
	u.CurExp += earnedExp
	for u.CurExp >= expToNext(u.Level) {
		u.CurExp -= expToNext(u.Level)
		u.Level++
		u.FishTicket += levelUpTickets
	}
	out := ExpOutcome{
		CurExp:         u.CurExp,
		ExpToNextLevel: expToNext(u.Level),
		UserLevel:      u.Level,
	}
	out.ExpProgress = float64(out.CurExp) / float64(out.ExpToNextLevel) * 100
	if u.Level > before {
		out.Message = fmt.Sprintf("level up! now level %d", u.Level)
	} else {
		out.Message = fmt.Sprintf("earned %d exp", earnedExp)
	}
	return out
}

// MemoryUserStore keeps accounts in a map. Default for tests and for running
// the broker without a database.
type MemoryUserStore struct {
	mu    sync.Mutex
	users map[string]*User
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[string]*User)}
}

func (s *MemoryUserStore) Ensure(_ context.Context, id string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[id]
	if u == nil {
		seeded := seedUser(id)
		u = &seeded
		s.users[id] = u
	}
	return *u, nil
}

func (s *MemoryUserStore) Get(_ context.Context, id string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[id]
	if u == nil {
		return User{}, ErrUserNotFound
	}
	return *u, nil
}

func (s *MemoryUserStore) ExpUp(_ context.Context, id string, earnedExp int) (ExpOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[id]
	if u == nil {
		return ExpOutcome{}, ErrUserNotFound
	}
	return applyExp(u, earnedExp), nil
}

func (s *MemoryUserStore) Ticket(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[id]
	if u == nil {
		return 0, ErrUserNotFound
	}
	return u.FishTicket, nil
}

func (s *MemoryUserStore) Friends(_ context.Context, ownerID string) ([]User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var friends []User
	for id, u := range s.users {
		if id != ownerID {
			friends = append(friends, *u)
		}
	}
	return friends, nil
}

// GormUserStore persists accounts in Postgres.
type GormUserStore struct {
	db *gorm.DB
}

func NewGormUserStore(db *gorm.DB) (*GormUserStore, error) {
	if err := db.AutoMigrate(&User{}); err != nil {
		return nil, fmt.Errorf("devserver: migrate users: %w", err)
	}
	return &GormUserStore{db: db}, nil
}

func (s *GormUserStore) Ensure(ctx context.Context, id string) (User, error) {
	var u User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.First(&u, "user_id = ?", id)
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			u = seedUser(id)
			return tx.Create(&u).Error
		}
		return res.Error
	})
	return u, err
}

func (s *GormUserStore) Get(ctx context.Context, id string) (User, error) {
	var u User
	err := s.db.WithContext(ctx).First(&u, "user_id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrUserNotFound
	}
	return u, err
}

func (s *GormUserStore) ExpUp(ctx context.Context, id string, earnedExp int) (ExpOutcome, error) {
	var out ExpOutcome
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var u User
		res := tx.First(&u, "user_id = ?", id)
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		if res.Error != nil {
			return res.Error
		}
		out = applyExp(&u, earnedExp)
		return tx.Save(&u).Error
	})
	return out, err
}

func (s *GormUserStore) Ticket(ctx context.Context, id string) (int, error) {
	u, err := s.Get(ctx, id)
	return u.FishTicket, err
}

func (s *GormUserStore) Friends(ctx context.Context, ownerID string) ([]User, error) {
	var friends []User
	err := s.db.WithContext(ctx).Where("user_id <> ?", ownerID).Find(&friends).Error
	return friends, err
}
