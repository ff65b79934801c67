package models

import "time"

// Favorite marks a post as saved by a user. The row's existence is the flag;
// toggling removes or recreates it.
type Favorite struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index:idx_fav_user_post,unique;not null" json:"user_id"`
	PostID    uint      `gorm:"index:idx_fav_user_post,unique;not null" json:"post_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Like works the same way as Favorite but feeds the public like count.
type Like struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index:idx_like_user_post,unique;not null" json:"user_id"`
	PostID    uint      `gorm:"index:idx_like_user_post,unique;not null" json:"post_id"`
	CreatedAt time.Time `json:"created_at"`
}
