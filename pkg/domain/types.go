package domain

// Category is one of the fixed set of book genres.
type Category string

const (
	CategoryTechnology Category = "Technology"
	CategoryScience    Category = "Science"
	CategoryHistory    Category = "History"
	CategoryFantasy    Category = "Fantasy"
	CategoryBiography  Category = "Biography"
)

// Categories lists every valid category in display order.
var Categories = []Category{
	CategoryTechnology,
	CategoryScience,
	CategoryHistory,
	CategoryFantasy,
	CategoryBiography,
}

// Valid reports whether c belongs to the fixed category set.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Book is a catalog listing owned by a user. ID is assigned by the store
// and immutable afterwards. Price is kept rounded to 2 fractional digits.
type Book struct {
	ID          int      `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Author      string   `json:"author"`
	Category    Category `json:"category"`
	Price       float64  `json:"price"`
	OwnerID     int      `json:"ownerId"`
	Thumbnail   string   `json:"thumbnail"`
}

type User struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Image    string `json:"image,omitempty"`
}

// SafeUser is the user projection exposed to callers: password removed.
type SafeUser struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Image string `json:"image,omitempty"`
}

// Safe strips the password before any external exposure.
func (u User) Safe() SafeUser {
	return SafeUser{
		ID:    u.ID,
		Name:  u.Name,
		Email: u.Email,
		Image: u.Image,
	}
}
