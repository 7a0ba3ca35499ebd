package storefront

import (
	"context"

	"github.com/unkn0wn-root/querycache"
)

type bookList = querycache.InfiniteData[Book]

func favoriteMutation(api API) querycache.Mutation[string, bool] {
	return querycache.Mutation[string, bool]{
		Name: "toggle_favorite",
		Keys: func(id string) []querycache.Key {
			return []querycache.Key{BookListsKey, BookDetailKey(id)}
		},
		Optimistic: func(tx *querycache.Tx, id string) error {
			return setFavorite(tx, id, func(cur bool) bool { return !cur })
		},
		Call: api.ToggleFavorite,
		Commit: func(tx *querycache.Tx, id string, fav bool) error {
			return setFavorite(tx, id, func(bool) bool { return fav })
		},
	}
}

// setFavorite rewrites the flag of id in every cached list page and in the
// cached detail.
func setFavorite(tx *querycache.Tx, id string, flag func(bool) bool) error {
	_, err := querycache.UpdateAll(tx, BookListsKey, func(d bookList) bookList {
		for i := range d.Pages {
			for j := range d.Pages[i].Items {
				if b := &d.Pages[i].Items[j]; b.ID == id {
					b.Favorite = flag(b.Favorite)
				}
			}
		}
		return d
	})
	if err != nil {
		return err
	}
	_, err = querycache.Update(tx, BookDetailKey(id), func(b BookDetail) BookDetail {
		b.Favorite = flag(b.Favorite)
		return b
	})
	return err
}

func addToCartMutation(api API) querycache.Mutation[CartLine, Cart] {
	return querycache.Mutation[CartLine, Cart]{
		Name: "add_to_cart",
		Keys: func(CartLine) []querycache.Key {
			return []querycache.Key{CartKey}
		},
		Call: func(ctx context.Context, l CartLine) (Cart, error) {
			return api.AddToCart(ctx, l.BookID, l.Quantity)
		},
		Commit: func(tx *querycache.Tx, _ CartLine, c Cart) error {
			return querycache.Put(tx, CartKey, c)
		},
	}
}

func clearCartMutation(api API) querycache.Mutation[struct{}, Cart] {
	return querycache.Mutation[struct{}, Cart]{
		Name: "clear_cart",
		Keys: func(struct{}) []querycache.Key {
			return []querycache.Key{CartKey}
		},
		Optimistic: func(tx *querycache.Tx, _ struct{}) error {
			return querycache.Put(tx, CartKey, EmptyCart())
		},
		Call: func(ctx context.Context, _ struct{}) (Cart, error) {
			return api.ClearCart(ctx)
		},
		Commit: func(tx *querycache.Tx, _ struct{}, c Cart) error {
			if c.Items == nil {
				c.Items = []CartItem{}
			}
			return querycache.Put(tx, CartKey, c)
		},
	}
}
