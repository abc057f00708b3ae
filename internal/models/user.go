package models

// User represents an authenticated API caller. The payment core does not
// manage profiles; users exist so payment endpoints can be tied to a
// bearer token and orders to an owner.
type User struct {
	BaseModel
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Phone        string `gorm:"uniqueIndex" json:"phone"`
	PasswordHash string `json:"-"`
}
