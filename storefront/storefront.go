// Package storefront is the bookstore's data layer: every read goes through
// the query cache and every write is a mutation that keeps the cached lists,
// details and cart consistent with the server.
package storefront

import (
	"context"
	"errors"
	"time"

	"github.com/unkn0wn-root/querycache"
)

const (
	DefaultPageLimit     = 20
	DefaultPrefetchDelay = 500 * time.Millisecond
	DefaultDebounceQuiet = 300 * time.Millisecond
)

type Options struct {
	Store *querycache.Store
	API   API

	PrefetchDelay time.Duration
	DebounceQuiet time.Duration

	// TimerOptions are passed to every Prefetcher and Debouncer built here.
	TimerOptions []querycache.TimerOption

	Logger querycache.Logger
}

type Storefront struct {
	store         *querycache.Store
	api           API
	prefetchDelay time.Duration
	quiet         time.Duration
	timerOpts     []querycache.TimerOption
	log           querycache.Logger

	toggleFavorite querycache.Mutation[string, bool]
	addToCart      querycache.Mutation[CartLine, Cart]
	clearCart      querycache.Mutation[struct{}, Cart]
}

// CartLine is the input of AddToCart.
type CartLine struct {
	BookID   string
	Quantity int
}

func New(opts Options) (*Storefront, error) {
	if opts.Store == nil {
		return nil, errors.New("storefront: nil Store")
	}
	if opts.API == nil {
		return nil, errors.New("storefront: nil API")
	}
	sf := &Storefront{
		store:         opts.Store,
		api:           opts.API,
		prefetchDelay: opts.PrefetchDelay,
		quiet:         opts.DebounceQuiet,
		timerOpts:     opts.TimerOptions,
		log:           opts.Logger,
	}
	if sf.prefetchDelay <= 0 {
		sf.prefetchDelay = DefaultPrefetchDelay
	}
	if sf.quiet <= 0 {
		sf.quiet = DefaultDebounceQuiet
	}
	if sf.log == nil {
		sf.log = querycache.NopLogger{}
	}
	sf.toggleFavorite = favoriteMutation(sf.api)
	sf.addToCart = addToCartMutation(sf.api)
	sf.clearCart = clearCartMutation(sf.api)
	return sf, nil
}

func (sf *Storefront) Store() *querycache.Store { return sf.store }

// Books returns a pager over the list selected by p. Close it when done.
func (sf *Storefront) Books(p ListParams, opts ...querycache.PagerOption) *querycache.Pager[Book] {
	p = p.normalize()
	return querycache.NewPager(sf.store, BookListKey(p), func(ctx context.Context, cursor string) (querycache.Page[Book], error) {
		return sf.api.ListBooks(ctx, p, cursor)
	}, opts...)
}

func (sf *Storefront) detailQuery(id string) querycache.Query[BookDetail] {
	return querycache.Query[BookDetail]{
		Key: BookDetailKey(id),
		Fn: func(ctx context.Context) (BookDetail, error) {
			return sf.api.BookDetail(ctx, id)
		},
	}
}

// BookDetail returns the cached detail of id, reading it when absent.
// Concurrent callers share one request.
func (sf *Storefront) BookDetail(ctx context.Context, id string) (BookDetail, error) {
	return querycache.Fetch(ctx, sf.store, sf.detailQuery(id))
}

// PrefetchBookDetail warms the detail of id unless a fresh copy is cached.
func (sf *Storefront) PrefetchBookDetail(ctx context.Context, id string) error {
	return querycache.Prefetch(ctx, sf.store, sf.detailQuery(id))
}

// NewPrefetcher prefetches the detail of a book once the pointer has rested
// on it for the prefetch delay.
func (sf *Storefront) NewPrefetcher() *querycache.Prefetcher {
	return querycache.NewPrefetcher(sf.prefetchDelay, func(ctx context.Context, id string) {
		if err := sf.PrefetchBookDetail(ctx, id); err != nil && ctx.Err() == nil {
			sf.log.Debug("detail prefetch failed", querycache.Fields{"id": id, "err": err})
		}
	}, sf.timerOptions()...)
}

func (sf *Storefront) Cart(ctx context.Context) (Cart, error) {
	return querycache.Fetch(ctx, sf.store, querycache.Query[Cart]{
		Key: CartKey,
		Fn:  sf.api.Cart,
	})
}

// CachedCart returns the cart without a request.
func (sf *Storefront) CachedCart() (Cart, bool) {
	c, ok, err := querycache.GetQueryData[Cart](sf.store, CartKey)
	return c, ok && err == nil
}

// ToggleFavorite flips the favorite flag of id. Every cached list and the
// cached detail show the new flag at once; on failure they go back to
// exactly what they showed before.
func (sf *Storefront) ToggleFavorite(ctx context.Context, id string) (bool, error) {
	return querycache.Mutate(ctx, sf.store, sf.toggleFavorite, id)
}

// AddToCart adds quantity copies of id (1 when quantity is not positive)
// and caches the cart the server returns. Server validation errors, such
// as exceeding stock, come back as *APIError.
func (sf *Storefront) AddToCart(ctx context.Context, id string, quantity int) (Cart, error) {
	if quantity <= 0 {
		quantity = 1
	}
	return querycache.Mutate(ctx, sf.store, sf.addToCart, CartLine{BookID: id, Quantity: quantity})
}

// ClearCart empties the cached cart before asking the server to. On failure
// the previous cart is restored.
func (sf *Storefront) ClearCart(ctx context.Context) (Cart, error) {
	return querycache.Mutate(ctx, sf.store, sf.clearCart, struct{}{})
}

// Discount looks code up. It returns nil without a request when the code
// is blank or the cart is empty.
func (sf *Storefront) Discount(ctx context.Context, code string) (*DiscountResult, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, nil
	}
	cart, err := sf.Cart(ctx)
	if err != nil {
		return nil, err
	}
	if len(cart.Items) == 0 {
		return nil, nil
	}
	res, err := querycache.Fetch(ctx, sf.store, querycache.Query[DiscountResult]{
		Key: DiscountKey(code),
		Fn: func(ctx context.Context) (DiscountResult, error) {
			return sf.api.ValidateDiscount(ctx, code)
		},
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// DiscountLookup is delivered by a DiscountInput once typing settles.
type DiscountLookup struct {
	Code   string
	Result *DiscountResult
	Err    error
}

// DiscountInput debounces raw keystrokes of a discount code field. Only the
// settled value is looked up; onResult receives the outcome.
func (sf *Storefront) DiscountInput(ctx context.Context, onResult func(DiscountLookup)) *querycache.Debouncer[string] {
	return querycache.NewDebouncer(sf.quiet, func(raw string) {
		code := NormalizeCode(raw)
		res, err := sf.Discount(ctx, code)
		if onResult != nil {
			onResult(DiscountLookup{Code: code, Result: res, Err: err})
		}
	}, sf.timerOptions()...)
}

// SearchInput debounces list filters; onCommit receives the settled
// parameters, normalized.
func (sf *Storefront) SearchInput(onCommit func(ListParams)) *querycache.Debouncer[ListParams] {
	return querycache.NewDebouncer(sf.quiet, func(p ListParams) {
		if onCommit != nil {
			onCommit(p.normalize())
		}
	}, sf.timerOptions()...)
}

func (sf *Storefront) timerOptions() []querycache.TimerOption {
	opts := []querycache.TimerOption{querycache.WithTimerLogger(sf.log)}
	return append(opts, sf.timerOpts...)
}
