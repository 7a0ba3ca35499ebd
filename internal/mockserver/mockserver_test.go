package mockserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBooks() []Book {
	return []Book{
		{ID: "1", Title: "Fourth Wing", Author: "Rebecca Yarros", Price: 18.99, Stock: 3},
		{ID: "2", Title: "Iron Flame", Author: "Rebecca Yarros", Price: 21.50, Stock: 10},
		{ID: "3", Title: "Six of Crows", Author: "Leigh Bardugo", Price: 14.25, Stock: 7},
		{ID: "4", Title: "Babel", Author: "R.F. Kuang", Price: 19.00, Stock: 2},
	}
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestListPagination(t *testing.T) {
	s := New(Options{Books: testBooks()})

	rec := do(t, s, http.MethodGet, "/api/books?limit=3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	first := decode[listResponse](t, rec)
	require.Len(t, first.Items, 3)
	require.NotNil(t, first.NextCursor)
	assert.Equal(t, "3", *first.NextCursor)

	rec = do(t, s, http.MethodGet, "/api/books?limit=3&cursor="+*first.NextCursor, nil)
	second := decode[listResponse](t, rec)
	require.Len(t, second.Items, 1)
	assert.Equal(t, "4", second.Items[0].ID)
	assert.Nil(t, second.NextCursor)
	assert.Equal(t, 2, s.Calls("GET /api/books"))
}

func TestListFilter(t *testing.T) {
	s := New(Options{Books: testBooks()})

	got := decode[listResponse](t, do(t, s, http.MethodGet, "/api/books?q=YARROS", nil))
	assert.Len(t, got.Items, 2)

	got = decode[listResponse](t, do(t, s, http.MethodGet, "/api/books?q=crow", nil))
	require.Len(t, got.Items, 1)
	assert.Equal(t, "Six of Crows", got.Items[0].Title)

	got = decode[listResponse](t, do(t, s, http.MethodGet, "/api/books?q=flame&author=bardugo", nil))
	assert.Empty(t, got.Items)
}

func TestBookDetail(t *testing.T) {
	s := New(Options{Books: testBooks()})

	rec := do(t, s, http.MethodGet, "/api/books/3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[map[string]any](t, rec)
	assert.Equal(t, "Six of Crows", got["title"])
	assert.Equal(t, false, got["favorite"])

	rec = do(t, s, http.MethodGet, "/api/books/404", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Book not found"}`, rec.Body.String())
}

func TestToggleFavorite(t *testing.T) {
	s := New(Options{Books: testBooks()})

	rec := do(t, s, http.MethodPost, "/api/books/1/favorite", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"favorite":true}`, rec.Body.String())
	assert.True(t, s.IsFavorite("1"))

	rec = do(t, s, http.MethodPost, "/api/books/1/favorite?fail=1", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.True(t, s.IsFavorite("1"), "forced failure must not change state")

	s.SetFailRate(1)
	rec = do(t, s, http.MethodPost, "/api/books/1/favorite", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	s.SetFailRate(0)
	rec = do(t, s, http.MethodPost, "/api/books/1/favorite", nil)
	assert.JSONEq(t, `{"favorite":false}`, rec.Body.String())
}

func TestCart(t *testing.T) {
	s := New(Options{Books: testBooks()})

	rec := do(t, s, http.MethodPost, "/api/cart/items", map[string]any{"bookId": "1"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, s, http.MethodPost, "/api/cart/items", map[string]any{"bookId": "1", "quantity": 2})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, s, http.MethodPost, "/api/cart/items", map[string]any{"bookId": "3", "quantity": 1})
	cart := decode[cartResponse](t, rec)
	require.Len(t, cart.Items, 2)
	assert.Equal(t, 3, cart.Items[0].Quantity)
	assert.Equal(t, 4, cart.TotalItems)
	assert.Equal(t, 71.22, cart.TotalPrice)

	rec = do(t, s, http.MethodPost, "/api/cart/items", map[string]any{"bookId": "1", "quantity": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Exceeds available stock"}`, rec.Body.String())

	rec = do(t, s, http.MethodPost, "/api/cart/clear?fail=1", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 4, decode[cartResponse](t, do(t, s, http.MethodGet, "/api/cart", nil)).TotalItems)

	rec = do(t, s, http.MethodPost, "/api/cart/clear", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"cart":{"items":[],"totalItems":0,"totalPrice":0}}`, rec.Body.String())
}

func TestDiscount(t *testing.T) {
	s := New(Options{Books: testBooks()})

	cases := []struct {
		code string
		want discountResponse
	}{
		{"save10", discountResponse{Valid: true, Type: "percent", Value: 10, Message: "10% off"}},
		{"  SAVE20 ", discountResponse{Valid: true, Type: "percent", Value: 20, Message: "20% off"}},
		{"flat5", discountResponse{Valid: true, Type: "fixed", Value: 5, Message: "$5 off"}},
		{"nope", discountResponse{Type: "percent", Message: "Invalid code"}},
		{"   ", discountResponse{Type: "percent", Message: "No code entered"}},
	}
	for _, tc := range cases {
		rec := do(t, s, http.MethodPost, "/api/cart/discount", map[string]string{"code": tc.code})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, tc.want, decode[discountResponse](t, rec), tc.code)
	}
}

func TestSeedDeterministic(t *testing.T) {
	a, b := Seed(120, 42), Seed(120, 42)
	require.Len(t, a, 120)
	for i := range a {
		assert.Equal(t, a[i].Title, b[i].Title)
		assert.Equal(t, a[i].Price, b[i].Price)
		assert.GreaterOrEqual(t, a[i].Stock, 5)
		assert.LessOrEqual(t, a[i].Stock, 80)
	}
}
