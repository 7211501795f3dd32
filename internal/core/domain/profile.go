package domain

import "time"

// Profile is the persisted user profile record.
type Profile struct {
	UserID      Identity  `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Bio         string    `json:"bio,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	BannerURL   string    `json:"banner_url,omitempty"`
	Interests   []string  `json:"interests,omitempty"`
	Badges      []string  `json:"badges,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// FollowerEdge is one directed follow relation between two users.
type FollowerEdge struct {
	FollowerID Identity  `json:"follower_id"`
	FolloweeID Identity  `json:"followee_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Post is a persisted feed post; the core only ever counts them.
type Post struct {
	ID        string    `json:"id"`
	AuthorID  Identity  `json:"author_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}
