package storefront

// Book is a list item. Description is only present on detail responses.
type Book struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Author      string  `json:"author"`
	Price       float64 `json:"price"`
	Stock       int     `json:"stock"`
	Description string  `json:"description,omitempty"`
	Favorite    bool    `json:"favorite"`
}

type Review struct {
	ID     string `json:"id"`
	Author string `json:"author"`
	Rating int    `json:"rating"`
	Text   string `json:"text"`
}

type BookDetail struct {
	Book
	Reviews []Review `json:"reviews,omitempty"`
}

type CartItem struct {
	BookID   string  `json:"bookId"`
	Title    string  `json:"title"`
	Author   string  `json:"author"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

type Cart struct {
	Items      []CartItem `json:"items"`
	TotalItems int        `json:"totalItems"`
	TotalPrice float64    `json:"totalPrice"`
}

// EmptyCart is what a cleared cart looks like.
func EmptyCart() Cart {
	return Cart{Items: []CartItem{}}
}

type DiscountType string

const (
	DiscountPercent DiscountType = "percent"
	DiscountFixed   DiscountType = "fixed"
)

// DiscountResult describes a code; the discounted total is derived locally
// with ApplyDiscount.
type DiscountResult struct {
	Valid   bool         `json:"valid"`
	Type    DiscountType `json:"type"`
	Value   float64      `json:"value"`
	Message string       `json:"message"`
}

// ListParams selects a book list. The zero Limit means DefaultPageLimit.
type ListParams struct {
	Q      string
	Author string
	Limit  int
}
