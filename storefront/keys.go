package storefront

import (
	"strings"

	"github.com/unkn0wn-root/querycache"
)

// Key layout:
//
//	books
//	books/list
//	books/list/{author,limit,q}
//	books/detail/<id>
//	cart
//	discount/<normalized code>
var (
	BooksKey      = querycache.NewKey("books")
	BookListsKey  = BooksKey.Append("list")
	bookDetailKey = BooksKey.Append("detail")
	CartKey       = querycache.NewKey("cart")
	DiscountsKey  = querycache.NewKey("discount")
)

// BookListKey keys one filtered list. Parameters are normalized first, so
// ListParams{} and ListParams{Limit: 20} share a cache entry.
func BookListKey(p ListParams) querycache.Key {
	p = p.normalize()
	return BookListsKey.Append(map[string]any{
		"q":      p.Q,
		"author": p.Author,
		"limit":  p.Limit,
	})
}

func BookDetailKey(id string) querycache.Key {
	return bookDetailKey.Append(id)
}

// DiscountKey keys a code lookup; codes differing only in case or
// surrounding space share it.
func DiscountKey(code string) querycache.Key {
	return DiscountsKey.Append(NormalizeCode(code))
}

func NormalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

func (p ListParams) normalize() ListParams {
	p.Q = strings.TrimSpace(p.Q)
	p.Author = strings.TrimSpace(p.Author)
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	return p
}
