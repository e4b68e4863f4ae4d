// Package fyers implements the broker interfaces against the Fyers v3
// trading and data APIs.
package fyers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/Gobinathr25/Supertrend/pkg/broker"
)

const (
	defaultAPIBase  = "https://api-t1.fyers.in/api/v3"
	defaultDataBase = "https://api-t1.fyers.in/data"
)

// Client wraps REST access to Fyers.
type Client struct {
	ClientID    string
	AccessToken string
	APIBase     string
	DataBase    string
	HTTPClient  *http.Client

	limiter *rate.Limiter
}

// NewClient builds a REST client. Fyers allows 10 requests per second
// per app; the limiter keeps retries under that.
func NewClient(clientID, accessToken string) *Client {
	return &Client{
		ClientID:    clientID,
		AccessToken: accessToken,
		APIBase:     defaultAPIBase,
		DataBase:    defaultDataBase,
		HTTPClient:  &http.Client{Timeout: 10 * time.Second},
		limiter:     rate.NewLimiter(rate.Limit(10), 10),
	}
}

func (c *Client) authHeader() string {
	return c.ClientID + ":" + c.AccessToken
}

func (c *Client) do(ctx context.Context, method, rawURL string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", c.authHeader())
	req.Header.Set("Content-Type", "application/json")

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= 500 {
		return fmt.Errorf("fyers %s status %d", rawURL, res.StatusCode)
	}
	return json.NewDecoder(res.Body).Decode(out)
}

// fyers order type/side constants
const (
	orderTypeMarket = 2
	sideBuy         = 1
	sideSell        = -1
)

type placeOrderRequest struct {
	Symbol      string  `json:"symbol"`
	Qty         int     `json:"qty"`
	Type        int     `json:"type"`
	Side        int     `json:"side"`
	ProductType string  `json:"productType"`
	LimitPrice  float64 `json:"limitPrice"`
	StopPrice   float64 `json:"stopPrice"`
	Validity    string  `json:"validity"`
	OrderTag    string  `json:"orderTag,omitempty"`
}

type placeOrderResponse struct {
	S       string `json:"s"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	ID      string `json:"id"`
}

// PlaceMarketOrder submits an intraday market order synchronously.
// A non-ok response maps to a rejected report, not an error; errors are
// reserved for transport failures where the outcome is unknown.
func (c *Client) PlaceMarketOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderReport, error) {
	side := sideSell
	if req.Side == broker.Buy {
		side = sideBuy
	}
	body := placeOrderRequest{
		Symbol:      req.Symbol,
		Qty:         req.Qty,
		Type:        orderTypeMarket,
		Side:        side,
		ProductType: "INTRADAY",
		Validity:    "DAY",
		OrderTag:    req.Tag,
	}

	var resp placeOrderResponse
	if err := c.do(ctx, http.MethodPost, c.APIBase+"/orders/sync", body, &resp); err != nil {
		return broker.OrderReport{}, err
	}
	if resp.S != "ok" {
		return broker.OrderReport{
			Status:  broker.StatusRejected,
			Message: resp.Message,
		}, nil
	}

	// Market orders fill immediately in practice; confirm via orderbook
	// to pick up the traded price.
	report, err := c.OrderStatus(ctx, resp.ID)
	if err != nil {
		return broker.OrderReport{OrderID: resp.ID, Status: broker.StatusPending}, nil
	}
	return report, nil
}

type orderBookResponse struct {
	S         string `json:"s"`
	Message   string `json:"message"`
	OrderBook []struct {
		ID          string  `json:"id"`
		Status      int     `json:"status"`
		TradedPrice float64 `json:"tradedPrice"`
		OrderTag    string  `json:"orderTag"`
		Message     string  `json:"message"`
	} `json:"orderBook"`
}

// fyers orderbook status codes
func mapOrderStatus(code int) broker.Status {
	switch code {
	case 2:
		return broker.StatusFilled
	case 1:
		return broker.StatusCancelled
	case 5:
		return broker.StatusRejected
	case 4, 6:
		return broker.StatusPending
	default:
		return broker.StatusUnknown
	}
}

// OrderStatus fetches a single order from the orderbook.
func (c *Client) OrderStatus(ctx context.Context, orderID string) (broker.OrderReport, error) {
	u := fmt.Sprintf("%s/orders?id=%s", c.APIBase, url.QueryEscape(orderID))
	var resp orderBookResponse
	if err := c.do(ctx, http.MethodGet, u, nil, &resp); err != nil {
		return broker.OrderReport{}, err
	}
	if resp.S != "ok" || len(resp.OrderBook) == 0 {
		return broker.OrderReport{}, broker.ErrOrderNotFound
	}
	o := resp.OrderBook[0]
	return broker.OrderReport{
		OrderID:  o.ID,
		Status:   mapOrderStatus(o.Status),
		AvgPrice: o.TradedPrice,
		Message:  o.Message,
	}, nil
}

// OrderStatusByTag scans the day's orderbook for the idempotency tag.
// Used after a submit timeout to learn whether the order went through.
func (c *Client) OrderStatusByTag(ctx context.Context, tag string) (broker.OrderReport, error) {
	var resp orderBookResponse
	if err := c.do(ctx, http.MethodGet, c.APIBase+"/orders", nil, &resp); err != nil {
		return broker.OrderReport{}, err
	}
	if resp.S != "ok" {
		return broker.OrderReport{}, fmt.Errorf("fyers orderbook: %s", resp.Message)
	}
	for _, o := range resp.OrderBook {
		if o.OrderTag == tag {
			return broker.OrderReport{
				OrderID:  o.ID,
				Status:   mapOrderStatus(o.Status),
				AvgPrice: o.TradedPrice,
				Message:  o.Message,
			}, nil
		}
	}
	return broker.OrderReport{}, broker.ErrOrderNotFound
}

type quotesResponse struct {
	S string `json:"s"`
	D []struct {
		N string `json:"n"`
		V struct {
			LP float64 `json:"lp"`
		} `json:"v"`
	} `json:"d"`
}

// Quote returns the last traded price for a symbol.
func (c *Client) Quote(ctx context.Context, symbol string) (float64, error) {
	u := fmt.Sprintf("%s/quotes?symbols=%s", c.DataBase, url.QueryEscape(symbol))
	var resp quotesResponse
	if err := c.do(ctx, http.MethodGet, u, nil, &resp); err != nil {
		return 0, err
	}
	if resp.S != "ok" || len(resp.D) == 0 {
		return 0, fmt.Errorf("fyers quote %s: empty response", symbol)
	}
	return resp.D[0].V.LP, nil
}

type fundsResponse struct {
	S         string `json:"s"`
	FundLimit []struct {
		ID           int     `json:"id"`
		Title        string  `json:"title"`
		EquityAmount float64 `json:"equityAmount"`
	} `json:"fund_limit"`
}

// fund_limit row IDs per the Fyers funds API
const (
	fundAvailable = 10
	fundUtilized  = 2
)

// Funds returns available and utilized margin.
func (c *Client) Funds(ctx context.Context) (broker.Funds, error) {
	var resp fundsResponse
	if err := c.do(ctx, http.MethodGet, c.APIBase+"/funds", nil, &resp); err != nil {
		return broker.Funds{}, err
	}
	if resp.S != "ok" {
		return broker.Funds{}, fmt.Errorf("fyers funds: bad response")
	}
	var f broker.Funds
	for _, row := range resp.FundLimit {
		switch row.ID {
		case fundAvailable:
			f.Available = row.EquityAmount
		case fundUtilized:
			f.Utilized = row.EquityAmount
		}
	}
	return f, nil
}
