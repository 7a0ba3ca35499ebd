// Package mockserver is an in-memory bookstore backend: books, favorites,
// a cart and discount codes behind the /api routes the storefront client
// talks to. Failures can be injected for rollback testing.
package mockserver

import (
	"encoding/json"
	"errors"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/unkn0wn-root/querycache"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

type Review struct {
	ID     string `json:"id"`
	Author string `json:"author"`
	Rating int    `json:"rating"`
	Text   string `json:"text"`
}

type Book struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Author      string   `json:"author"`
	Price       float64  `json:"price"`
	Stock       int      `json:"stock"`
	Description string   `json:"description"`
	Reviews     []Review `json:"reviews"`
}

type discountCode struct {
	Type    string
	Value   float64
	Message string
}

var discountCodes = map[string]discountCode{
	"SAVE10": {Type: "percent", Value: 10, Message: "10% off"},
	"SAVE20": {Type: "percent", Value: 20, Message: "20% off"},
	"FLAT5":  {Type: "fixed", Value: 5, Message: "$5 off"},
}

type Options struct {
	// Books replaces the generated catalogue.
	Books []Book
	// Count is the generated catalogue size. Default 100.
	Count int
	Seed  uint64

	// FailRate is the chance a favorite toggle fails without ?fail=1.
	FailRate float64

	// Latency delays every API response.
	Latency time.Duration
	// Before runs before each API handler with the route pattern, e.g.
	// "GET /api/books/{id}". Tests use it to hold requests.
	Before func(route string, r *http.Request)

	Logger querycache.Logger
}

type cartRow struct {
	bookID   string
	quantity int
}

// Server is safe for concurrent use.
type Server struct {
	router  chi.Router
	latency time.Duration
	before  func(string, *http.Request)
	log     querycache.Logger

	mu        sync.Mutex
	books     []Book
	byID      map[string]int
	favorites map[string]bool
	cart      []cartRow
	failRate  float64
	rng       *rand.Rand
	calls     map[string]int
}

func New(opts Options) *Server {
	books := opts.Books
	if books == nil {
		n := opts.Count
		if n <= 0 {
			n = 100
		}
		books = Seed(n, opts.Seed)
	}
	s := &Server{
		latency:   opts.Latency,
		before:    opts.Before,
		log:       opts.Logger,
		books:     books,
		byID:      make(map[string]int, len(books)),
		favorites: make(map[string]bool),
		failRate:  opts.FailRate,
		rng:       rand.New(rand.NewPCG(opts.Seed, 1)),
		calls:     make(map[string]int),
	}
	if s.log == nil {
		s.log = querycache.NopLogger{}
	}
	for i, b := range books {
		s.byID[b.ID] = i
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/books", func(r chi.Router) {
			r.Get("/", s.listBooks)
			r.Get("/{id}", s.bookDetail)
			r.Post("/{id}/favorite", s.toggleFavorite)
		})
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", s.getCart)
			r.Post("/items", s.addToCart)
			r.Post("/clear", s.clearCart)
			r.Post("/discount", s.validateDiscount)
		})
	})
	return r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handle counts the call and applies Before and Latency.
func (s *Server) handle(route string, r *http.Request) {
	s.mu.Lock()
	s.calls[route]++
	s.mu.Unlock()
	s.log.Debug("mock request", querycache.Fields{"route": route, "query": r.URL.RawQuery})
	if s.before != nil {
		s.before(route, r)
	}
	if s.latency > 0 {
		select {
		case <-time.After(s.latency):
		case <-r.Context().Done():
		}
	}
}

// Calls returns how many requests hit route, e.g. "GET /api/books/{id}".
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

func (s *Server) SetFailRate(p float64) {
	s.mu.Lock()
	s.failRate = p
	s.mu.Unlock()
}

// IsFavorite reports the server-side favorite flag of id.
func (s *Server) IsFavorite(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.favorites[id]
}

type listItem struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Author   string  `json:"author"`
	Price    float64 `json:"price"`
	Stock    int     `json:"stock"`
	Favorite bool    `json:"favorite"`
}

type listResponse struct {
	Items      []listItem `json:"items"`
	NextCursor *string    `json:"nextCursor"`
}

func (s *Server) listBooks(w http.ResponseWriter, r *http.Request) {
	s.handle("GET /api/books", r)
	q := r.URL.Query()

	offset := 0
	if c := q.Get("cursor"); c != "" {
		n, err := strconv.Atoi(c)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid cursor")
			return
		}
		offset = n
	}
	limit := DefaultLimit
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = min(n, MaxLimit)
	}

	s.mu.Lock()
	matched := filterBooks(s.books, q.Get("q"), q.Get("author"))
	resp := listResponse{Items: []listItem{}}
	end := min(offset+limit, len(matched))
	for i := offset; i < end; i++ {
		b := matched[i]
		resp.Items = append(resp.Items, listItem{
			ID:       b.ID,
			Title:    b.Title,
			Author:   b.Author,
			Price:    b.Price,
			Stock:    b.Stock,
			Favorite: s.favorites[b.ID],
		})
	}
	s.mu.Unlock()

	if end < len(matched) {
		next := strconv.Itoa(end)
		resp.NextCursor = &next
	}
	writeJSON(w, http.StatusOK, resp)
}

// filterBooks matches q against title or author and author against author,
// both as case-insensitive substrings.
func filterBooks(books []Book, q, author string) []Book {
	q = strings.ToLower(strings.TrimSpace(q))
	author = strings.ToLower(strings.TrimSpace(author))
	if q == "" && author == "" {
		return books
	}
	var out []Book
	for _, b := range books {
		t, a := strings.ToLower(b.Title), strings.ToLower(b.Author)
		if q != "" && !strings.Contains(t, q) && !strings.Contains(a, q) {
			continue
		}
		if author != "" && !strings.Contains(a, author) {
			continue
		}
		out = append(out, b)
	}
	return out
}

type detailResponse struct {
	Book
	Favorite bool `json:"favorite"`
}

func (s *Server) bookDetail(w http.ResponseWriter, r *http.Request) {
	s.handle("GET /api/books/{id}", r)
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	i, ok := s.byID[id]
	var resp detailResponse
	if ok {
		resp = detailResponse{Book: s.books[i], Favorite: s.favorites[id]}
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "Book not found")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) toggleFavorite(w http.ResponseWriter, r *http.Request) {
	s.handle("POST /api/books/{id}/favorite", r)
	id := chi.URLParam(r, "id")
	force := r.URL.Query().Get("fail") == "1"

	s.mu.Lock()
	if _, ok := s.byID[id]; !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "Book not found")
		return
	}
	if force || s.rng.Float64() < s.failRate {
		state := s.favorites[id]
		s.mu.Unlock()
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":    "Failed to update favorite",
			"favorite": state,
		})
		return
	}
	fav := !s.favorites[id]
	if fav {
		s.favorites[id] = true
	} else {
		delete(s.favorites, id)
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]bool{"favorite": fav})
}

type cartItem struct {
	BookID   string  `json:"bookId"`
	Title    string  `json:"title"`
	Author   string  `json:"author"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

type cartResponse struct {
	Items      []cartItem `json:"items"`
	TotalItems int        `json:"totalItems"`
	TotalPrice float64    `json:"totalPrice"`
}

// cartLocked renders the cart with rounded totals. Caller holds s.mu.
func (s *Server) cartLocked() cartResponse {
	out := cartResponse{Items: []cartItem{}}
	total := 0.0
	for _, row := range s.cart {
		i, ok := s.byID[row.bookID]
		if !ok || row.quantity <= 0 {
			continue
		}
		b := s.books[i]
		out.Items = append(out.Items, cartItem{
			BookID:   b.ID,
			Title:    b.Title,
			Author:   b.Author,
			Price:    b.Price,
			Quantity: row.quantity,
		})
		out.TotalItems += row.quantity
		total += b.Price * float64(row.quantity)
	}
	out.TotalPrice = math.Round(total*100) / 100
	return out
}

func (s *Server) getCart(w http.ResponseWriter, r *http.Request) {
	s.handle("GET /api/cart", r)
	s.mu.Lock()
	resp := s.cartLocked()
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, resp)
}

var errExceedsStock = errors.New("Exceeds available stock")

func (s *Server) addToCart(w http.ResponseWriter, r *http.Request) {
	s.handle("POST /api/cart/items", r)
	var req struct {
		BookID   string `json:"bookId"`
		Quantity *int   `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}
	if qty <= 0 {
		writeError(w, http.StatusBadRequest, "Quantity must be positive")
		return
	}

	s.mu.Lock()
	resp, status, err := s.addLocked(req.BookID, qty)
	s.mu.Unlock()
	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) addLocked(id string, qty int) (cartResponse, int, error) {
	i, ok := s.byID[id]
	if !ok {
		return cartResponse{}, http.StatusNotFound, errors.New("Book not found")
	}
	stock := s.books[i].Stock
	for j := range s.cart {
		if s.cart[j].bookID != id {
			continue
		}
		if s.cart[j].quantity+qty > stock {
			return cartResponse{}, http.StatusBadRequest, errExceedsStock
		}
		s.cart[j].quantity += qty
		return s.cartLocked(), http.StatusOK, nil
	}
	if qty > stock {
		return cartResponse{}, http.StatusBadRequest, errExceedsStock
	}
	s.cart = append(s.cart, cartRow{bookID: id, quantity: qty})
	return s.cartLocked(), http.StatusOK, nil
}

func (s *Server) clearCart(w http.ResponseWriter, r *http.Request) {
	s.handle("POST /api/cart/clear", r)
	if r.URL.Query().Get("fail") == "1" {
		writeError(w, http.StatusInternalServerError, "Failed to clear cart")
		return
	}
	s.mu.Lock()
	s.cart = nil
	resp := s.cartLocked()
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]cartResponse{"cart": resp})
}

type discountResponse struct {
	Valid   bool    `json:"valid"`
	Type    string  `json:"type"`
	Value   float64 `json:"value"`
	Message string  `json:"message"`
}

func (s *Server) validateDiscount(w http.ResponseWriter, r *http.Request) {
	s.handle("POST /api/cart/discount", r)
	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	writeJSON(w, http.StatusOK, lookupDiscount(req.Code))
}

func lookupDiscount(code string) discountResponse {
	code = strings.TrimSpace(code)
	if code == "" {
		return discountResponse{Type: "percent", Message: "No code entered"}
	}
	d, ok := discountCodes[strings.ToUpper(code)]
	if !ok {
		return discountResponse{Type: "percent", Message: "Invalid code"}
	}
	return discountResponse{Valid: true, Type: d.Type, Value: d.Value, Message: d.Message}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
