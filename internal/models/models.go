package models

import "time"

type User struct {
	ID           uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string  `gorm:"uniqueIndex;not null"     json:"username"`
	PasswordHash string  `gorm:"not null"                 json:"-"`
	Role         string  `gorm:"not null;default:user"    json:"role"`
	Email        *string `gorm:"uniqueIndex"              json:"email,omitempty"`
	Phone        *string `gorm:"uniqueIndex"              json:"phone,omitempty"`
}

type Product struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"uniqueIndex;not null"     json:"name"`
	Description string    `gorm:"not null"                 json:"description"`
	Price       float64   `gorm:"not null"                 json:"price"`
	Category    string    `gorm:"index;not null"           json:"category"`
	Stock       int64     `gorm:"not null;default:0"       json:"stock"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type CategoryStats struct {
	Category      string  `json:"category"`
	TotalProducts int64   `json:"totalProducts"`
	AveragePrice  float64 `json:"averagePrice"`
	TotalStock    int64   `json:"totalStock"`
}

// ProductFilter is the conjunctive list filter. Zero values are unset.
type ProductFilter struct {
	Category string
	MinPrice *float64
	MaxPrice *float64
	Name     string
}

// All returns every model migrated at startup.
func All() []any {
	return []any{&User{}, &Product{}}
}
