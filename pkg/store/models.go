package store

// GORM models used for persistence.
type UserModel struct {
	ID       int    `gorm:"primaryKey"`
	Name     string `gorm:"not null"`
	Email    string `gorm:"uniqueIndex;not null"`
	Password string `gorm:"not null"`
	Image    string
}

type BookModel struct {
	ID          int    `gorm:"primaryKey"`
	Title       string `gorm:"not null"`
	Description string `gorm:"type:text;not null"`
	Author      string `gorm:"not null"`
	Category    string `gorm:"not null;index"`
	Price       float64
	OwnerID     int `gorm:"not null;index"`
	Thumbnail   string
}
