package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/unkn0wn-root/querycache"
)

// API is the bookstore backend.
type API interface {
	ListBooks(ctx context.Context, p ListParams, cursor string) (querycache.Page[Book], error)
	BookDetail(ctx context.Context, id string) (BookDetail, error)
	ToggleFavorite(ctx context.Context, id string) (bool, error)
	Cart(ctx context.Context) (Cart, error)
	AddToCart(ctx context.Context, id string, quantity int) (Cart, error)
	ClearCart(ctx context.Context) (Cart, error)
	ValidateDiscount(ctx context.Context, code string) (DiscountResult, error)
}

const maxErrorBody = 64 << 10

// Client talks JSON to the backend over HTTP.
type Client struct {
	base     string
	hc       *http.Client
	failures bool
	log      querycache.Logger
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.hc = hc }
}

// WithTimeout bounds every request, on top of the caller's context.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			hc := *c.hc
			hc.Timeout = d
			c.hc = &hc
		}
	}
}

// WithSimulatedFailures asks the backend to fail favorite toggles and cart
// clears, for exercising rollback.
func WithSimulatedFailures() ClientOption {
	return func(c *Client) { c.failures = true }
}

func WithClientLogger(l querycache.Logger) ClientOption {
	return func(c *Client) { c.log = l }
}

// NewClient targets baseURL, e.g. "http://localhost:5000/api".
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		hc:   &http.Client{},
		log:  querycache.NopLogger{},
	}
	for _, o := range opts {
		o(c)
	}
	if c.log == nil {
		c.log = querycache.NopLogger{}
	}
	return c
}

type listPayload struct {
	Items      []Book  `json:"items"`
	NextCursor *string `json:"nextCursor"`
}

func (c *Client) ListBooks(ctx context.Context, p ListParams, cursor string) (querycache.Page[Book], error) {
	p = p.normalize()
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	q.Set("limit", strconv.Itoa(p.Limit))
	if p.Q != "" {
		q.Set("q", p.Q)
	}
	if p.Author != "" {
		q.Set("author", p.Author)
	}
	var out listPayload
	if err := c.do(ctx, http.MethodGet, "/books", q, nil, &out); err != nil {
		return querycache.Page[Book]{}, err
	}
	page := querycache.Page[Book]{Items: out.Items}
	if page.Items == nil {
		page.Items = []Book{}
	}
	if out.NextCursor != nil {
		page.NextCursor = *out.NextCursor
	}
	return page, nil
}

func (c *Client) BookDetail(ctx context.Context, id string) (BookDetail, error) {
	var out BookDetail
	err := c.do(ctx, http.MethodGet, "/books/"+url.PathEscape(id), nil, nil, &out)
	return out, err
}

func (c *Client) ToggleFavorite(ctx context.Context, id string) (bool, error) {
	var out struct {
		Favorite bool `json:"favorite"`
	}
	err := c.do(ctx, http.MethodPost, "/books/"+url.PathEscape(id)+"/favorite", c.failQuery(), nil, &out)
	return out.Favorite, err
}

func (c *Client) Cart(ctx context.Context) (Cart, error) {
	var out Cart
	err := c.do(ctx, http.MethodGet, "/cart", nil, nil, &out)
	return out, err
}

func (c *Client) AddToCart(ctx context.Context, id string, quantity int) (Cart, error) {
	if quantity <= 0 {
		quantity = 1
	}
	body := map[string]any{"bookId": id, "quantity": quantity}
	var out Cart
	err := c.do(ctx, http.MethodPost, "/cart/items", nil, body, &out)
	return out, err
}

func (c *Client) ClearCart(ctx context.Context) (Cart, error) {
	var out struct {
		Cart Cart `json:"cart"`
	}
	err := c.do(ctx, http.MethodPost, "/cart/clear", c.failQuery(), nil, &out)
	return out.Cart, err
}

func (c *Client) ValidateDiscount(ctx context.Context, code string) (DiscountResult, error) {
	var out DiscountResult
	err := c.do(ctx, http.MethodPost, "/cart/discount", nil, map[string]string{"code": code}, &out)
	return out, err
}

func (c *Client) failQuery() url.Values {
	if !c.failures {
		return nil
	}
	return url.Values{"fail": {"1"}}
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body, out any) error {
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("storefront: encode %s %s: %w", method, path, err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return &TransportError{Method: method, Path: path, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		c.log.Debug("request failed", querycache.Fields{"method": method, "path": path, "err": err})
		return &TransportError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()
	c.log.Debug("request done", querycache.Fields{
		"method": method,
		"path":   path,
		"status": resp.StatusCode,
		"took":   time.Since(start).String(),
	})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return newAPIError(resp.StatusCode, b)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return &TransportError{Method: method, Path: path, Err: ctx.Err()}
		}
		return fmt.Errorf("storefront: decode %s %s: %w", method, path, err)
	}
	return nil
}
