package transport

import "github.com/Skotchmaster/inventory/internal/models"

// Envelope wraps every non-list response body.
type Envelope struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data"`
	Error   any    `json:"error"`
}

func OK(message string, data any) Envelope {
	return Envelope{Status: true, Message: message, Data: data}
}

func Fail(message, code string) Envelope {
	return Envelope{Status: false, Message: message, Error: code}
}

type RegisterRequest struct {
	Username string  `json:"username"`
	Password string  `json:"password"`
	Role     string  `json:"role"`
	Email    *string `json:"email"`
	Phone    *string `json:"phone"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type SendOTPRequest struct {
	Contact     string `json:"contact"`
	ContactType string `json:"contactType"`
}

type VerifyOTPRequest struct {
	Contact  string `json:"contact"`
	InputOTP string `json:"inputOtp"`
}

type SessionResponse struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

// CreateProductRequest uses pointers so that missing numeric fields are
// distinguishable from zero.
type CreateProductRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       *float64 `json:"price"`
	Category    string   `json:"category"`
	Stock       *int64   `json:"stock"`
}

type PatchProductRequest struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Price       *float64 `json:"price"`
	Category    *string  `json:"category"`
	Stock       *int64   `json:"stock"`
}

func (r PatchProductRequest) Empty() bool {
	return r.Name == nil && r.Description == nil && r.Price == nil && r.Category == nil && r.Stock == nil
}

type ListMetadata struct {
	TotalProducts int64 `json:"totalProducts"`
	TotalPages    int64 `json:"totalPages"`
}

// ProductPage is the list payload; it is cached as-is.
type ProductPage struct {
	Data        []models.Product `json:"data"`
	Metadata    ListMetadata     `json:"metadata"`
	CurrentPage int              `json:"currentPage"`
}
