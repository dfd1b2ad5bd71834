package marketplace

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/sellerbridge/backend/internal/domain/marketplace"
)

const (
	// maxResponseSize limits the response body size to prevent memory exhaustion
	maxResponseSize = 10 * 1024 * 1024 // 10MB max response

	// wireTimeLayout is the timestamp format the remote API uses in payloads
	wireTimeLayout = "2006-01-02 15:04:05"
)

// envelope is the remote API's response wrapper. Application-level failures
// arrive as HTTP 200 with isError set, so the flag is authoritative and the
// HTTP status alone is never trusted.
type envelope struct {
	IsError  bool            `json:"isError"`
	Messages []apiMessage    `json:"messages"`
	Results  json.RawMessage `json:"results"`
	// RetryAfter is the backoff hint in seconds some throttled responses
	// carry in the body instead of the Retry-After header.
	RetryAfter int `json:"retry_after"`
}

func (e *envelope) retryAfterHint() time.Duration {
	if e.RetryAfter <= 0 {
		return 0
	}
	return time.Duration(e.RetryAfter) * time.Second
}

// apiMessage tolerates both shapes the remote emits: a bare string and an
// object with a text field.
type apiMessage struct {
	Text string
}

func (m *apiMessage) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		m.Text = s
		return nil
	}
	var obj struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	m.Text = obj.Text
	return nil
}

func (e *envelope) messageTexts() []string {
	texts := make([]string, 0, len(e.Messages))
	for _, m := range e.Messages {
		if m.Text != "" {
			texts = append(texts, m.Text)
		}
	}
	return texts
}

// listRequestBody is the JSON body of every read_list call.
type listRequestBody struct {
	CurrentPage   int    `json:"currentPage"`
	ItemsPerPage  int    `json:"itemsPerPage"`
	ModifiedAfter string `json:"modifiedAfter,omitempty"`
}

func newListRequestBody(req domain.ListRequest) listRequestBody {
	body := listRequestBody{
		CurrentPage:  req.Page,
		ItemsPerPage: req.PageSize,
	}
	if !req.ModifiedSince.IsZero() {
		body.ModifiedAfter = req.ModifiedSince.UTC().Format(wireTimeLayout)
	}
	return body
}

// ---------------------------------------------------------------------------
// Wire payloads
// ---------------------------------------------------------------------------

// productPayload is one element of a product_offer read_list result.
type productPayload struct {
	ID           int64           `json:"id"`
	PartNumber   string          `json:"part_number"`
	Name         string          `json:"name"`
	SalePrice    decimal.Decimal `json:"sale_price"`
	GeneralStock int             `json:"general_stock"`
	Status       int             `json:"status"` // 1 = active, 0 = inactive
}

func (p *productPayload) toDomain(account domain.AccountType, syncedAt time.Time) domain.CatalogItem {
	return domain.CatalogItem{
		SKU:          p.PartNumber,
		Account:      account,
		RemoteID:     p.ID,
		Name:         p.Name,
		Price:        p.SalePrice,
		Stock:        p.GeneralStock,
		Active:       p.Status == 1,
		LastSyncedAt: syncedAt,
	}
}

// orderPayload is one element of an order read_list result.
type orderPayload struct {
	ID       int64  `json:"id"`
	Status   int    `json:"status"`
	Customer struct {
		Code string `json:"code"`
		Name string `json:"name"`
	} `json:"customer"`
	Products []orderLinePayload `json:"products"`
	Date     string             `json:"date"`
}

type orderLinePayload struct {
	PartNumber string          `json:"part_number"`
	Quantity   int             `json:"quantity"`
	SalePrice  decimal.Decimal `json:"sale_price"`
}

func (o *orderPayload) toDomain(account domain.AccountType, syncedAt time.Time) domain.Order {
	lines := make([]domain.OrderLine, 0, len(o.Products))
	total := decimal.Zero
	for _, p := range o.Products {
		lines = append(lines, domain.OrderLine{
			SKU:       p.PartNumber,
			Quantity:  p.Quantity,
			UnitPrice: p.SalePrice,
		})
		total = total.Add(p.SalePrice.Mul(decimal.NewFromInt(int64(p.Quantity))))
	}

	customerRef := o.Customer.Code
	if customerRef == "" {
		customerRef = o.Customer.Name
	}

	placedAt := syncedAt
	if t, err := time.Parse(wireTimeLayout, o.Date); err == nil {
		placedAt = t.UTC()
	}

	return domain.Order{
		ExternalID:   o.ID,
		Account:      account,
		Status:       o.Status,
		CustomerRef:  customerRef,
		TotalAmount:  total,
		Lines:        lines,
		PlacedAt:     placedAt,
		LastSyncedAt: syncedAt,
	}
}

// ---------------------------------------------------------------------------
// Retry-After parsing
// ---------------------------------------------------------------------------

// parseRetryAfter reads a Retry-After header, which may be a delta in seconds
// or an HTTP date. Returns 0 when absent or unparseable.
func parseRetryAfter(h http.Header, now time.Time) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
