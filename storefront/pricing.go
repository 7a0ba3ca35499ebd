package storefront

import (
	"fmt"

	"github.com/unkn0wn-root/querycache"
)

const (
	FavoriteIcon   = "♥"
	NoFavoriteIcon = "♡"
)

// ApplyDiscount returns total after d. An absent or invalid code leaves the
// total unchanged; a fixed discount never goes below zero.
func ApplyDiscount(total float64, d *DiscountResult) float64 {
	if d == nil || !d.Valid {
		return total
	}
	switch d.Type {
	case DiscountPercent:
		return total * (1 - d.Value/100)
	case DiscountFixed:
		return max(0, total-d.Value)
	default:
		return total
	}
}

// InventoryValue sums price × stock over the pages loaded so far and counts
// the books it covered. Pages not yet fetched do not count.
func InventoryValue(data querycache.InfiniteData[Book]) (total float64, books int) {
	for _, p := range data.Pages {
		for _, b := range p.Items {
			total += b.Price * float64(b.Stock)
			books++
		}
	}
	return total, books
}

func FormatPrice(v float64) string {
	return fmt.Sprintf("$%.2f", v)
}

func FavoriteLabel(favorite bool) string {
	if favorite {
		return "Remove from favorites"
	}
	return "Add to favorites"
}

func FavoriteMark(favorite bool) string {
	if favorite {
		return FavoriteIcon
	}
	return NoFavoriteIcon
}

// QuantityInCart returns how many copies of id the cart holds.
func QuantityInCart(c Cart, id string) int {
	n := 0
	for _, it := range c.Items {
		if it.BookID == id {
			n += it.Quantity
		}
	}
	return n
}

// CanAddToCart is false once the cart holds as many copies as are in stock.
func CanAddToCart(c Cart, b Book) bool {
	return QuantityInCart(c, b.ID) < b.Stock
}
