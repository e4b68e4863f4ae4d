package fyers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/Gobinathr25/Supertrend/pkg/broker"
)

type historyResponse struct {
	S       string      `json:"s"`
	Message string      `json:"message"`
	Candles [][]float64 `json:"candles"`
}

// History fetches historical bars. The Fyers history API takes the
// resolution in minutes and epoch-second range bounds; candles come
// back as [ts, open, high, low, close, volume] rows.
func (c *Client) History(ctx context.Context, symbol string, interval time.Duration, from, to time.Time) ([]broker.HistCandle, error) {
	resolution := int(interval.Minutes())
	if resolution < 1 {
		return nil, fmt.Errorf("fyers history: resolution %v below one minute", interval)
	}
	u := fmt.Sprintf("%s/history?symbol=%s&resolution=%d&date_format=0&range_from=%d&range_to=%d&cont_flag=1",
		c.DataBase, url.QueryEscape(symbol), resolution, from.Unix(), to.Unix())

	var resp historyResponse
	if err := c.do(ctx, http.MethodGet, u, nil, &resp); err != nil {
		return nil, err
	}
	if resp.S != "ok" {
		return nil, fmt.Errorf("fyers history %s: %s", symbol, resp.Message)
	}

	bars := make([]broker.HistCandle, 0, len(resp.Candles))
	for _, row := range resp.Candles {
		if len(row) < 6 {
			continue
		}
		bars = append(bars, broker.HistCandle{
			Time:   time.Unix(int64(row[0]), 0),
			Open:   row[1],
			High:   row[2],
			Low:    row[3],
			Close:  row[4],
			Volume: row[5],
		})
	}
	return bars, nil
}
