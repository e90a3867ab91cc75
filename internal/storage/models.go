package storage

import "time"

// Member represents a registered fan-club member
type Member struct {
	ID          string    `json:"id"`
	Nickname    string    `json:"nickname"`
	Handle      string    `json:"handle"`
	FanSince    string    `json:"fanSince"`
	Nationality string    `json:"nationality"`
	Email       string    `json:"email,omitempty"`
	ImagePath   string    `json:"imagePath,omitempty"`
	Amount      int64     `json:"amount"` // expected payment in naira
	IsActive    bool      `json:"isActive"`
	IsPaid      bool      `json:"isPaid"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewMember holds the fields supplied at registration
type NewMember struct {
	Nickname    string
	Handle      string
	FanSince    string
	Nationality string
	Email       string
	ImagePath   string
	Amount      int64
}
