package marketplace

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/sellerbridge/backend/internal/domain/marketplace"
)

func TestAPIMessage_BothShapes(t *testing.T) {
	var env envelope
	err := json.Unmarshal([]byte(`{
		"isError": true,
		"messages": ["plain string", {"text": "object shape"}]
	}`), &env)

	require.NoError(t, err)
	assert.True(t, env.IsError)
	assert.Equal(t, []string{"plain string", "object shape"}, env.messageTexts())
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 11, 3, 12, 0, 0, 0, time.UTC)

	t.Run("seconds delta", func(t *testing.T) {
		h := http.Header{}
		h.Set("Retry-After", "30")
		assert.Equal(t, 30*time.Second, parseRetryAfter(h, now))
	})

	t.Run("http date", func(t *testing.T) {
		h := http.Header{}
		h.Set("Retry-After", now.Add(45*time.Second).Format(http.TimeFormat))
		d := parseRetryAfter(h, now)
		assert.Equal(t, 45*time.Second, d)
	})

	t.Run("date in the past", func(t *testing.T) {
		h := http.Header{}
		h.Set("Retry-After", now.Add(-time.Minute).Format(http.TimeFormat))
		assert.Equal(t, time.Duration(0), parseRetryAfter(h, now))
	})

	t.Run("absent", func(t *testing.T) {
		assert.Equal(t, time.Duration(0), parseRetryAfter(http.Header{}, now))
	})

	t.Run("junk", func(t *testing.T) {
		h := http.Header{}
		h.Set("Retry-After", "soonish")
		assert.Equal(t, time.Duration(0), parseRetryAfter(h, now))
	})

	t.Run("negative seconds", func(t *testing.T) {
		h := http.Header{}
		h.Set("Retry-After", "-5")
		assert.Equal(t, time.Duration(0), parseRetryAfter(h, now))
	})
}

func TestOrderPayload_ToDomain(t *testing.T) {
	syncedAt := time.Date(2025, 11, 3, 9, 0, 0, 0, time.UTC)

	t.Run("falls back to customer name and sync time", func(t *testing.T) {
		p := orderPayload{ID: 1, Status: 3, Date: "not a date"}
		p.Customer.Name = "Jane Buyer"

		o := p.toDomain(domain.AccountMain, syncedAt)
		assert.Equal(t, "Jane Buyer", o.CustomerRef)
		assert.Equal(t, syncedAt, o.PlacedAt)
		assert.True(t, o.TotalAmount.IsZero())
	})

	t.Run("total is the sum over lines", func(t *testing.T) {
		var p orderPayload
		require.NoError(t, json.Unmarshal([]byte(`{
			"id": 2, "status": 1, "date": "2025-10-30 11:00:00",
			"products": [
				{"part_number": "A", "quantity": 3, "sale_price": "2.50"},
				{"part_number": "B", "quantity": 1, "sale_price": "0.99"}
			]
		}`), &p))

		o := p.toDomain(domain.AccountFBE, syncedAt)
		assert.Equal(t, "8.49", o.TotalAmount.StringFixed(2))
		assert.Equal(t, time.Date(2025, 10, 30, 11, 0, 0, 0, time.UTC), o.PlacedAt)
	})
}

func TestNewListRequestBody(t *testing.T) {
	since := time.Date(2025, 11, 1, 23, 59, 59, 0, time.UTC)
	body := newListRequestBody(domain.ListRequest{Page: 7, PageSize: 50, ModifiedSince: since})

	assert.Equal(t, 7, body.CurrentPage)
	assert.Equal(t, 50, body.ItemsPerPage)
	assert.Equal(t, "2025-11-01 23:59:59", body.ModifiedAfter)

	full := newListRequestBody(domain.ListRequest{Page: 1, PageSize: 100})
	assert.Empty(t, full.ModifiedAfter)
}
