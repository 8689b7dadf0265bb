// Package qrcode fetches QR code PNGs from an external image service.
package qrcode

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

type Client struct {
	http *resty.Client
	size int
}

// New creates a client for a qrserver.com-compatible endpoint, which takes
// size=<n>x<n> and data=<text> query params.
func New(serviceURL string, size int) *Client {
	if size <= 0 {
		size = 150
	}
	client := resty.New().
		SetBaseURL(serviceURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		SetHeader("Accept", "image/png")
	return &Client{http: client, size: size}
}

func (c *Client) params(data string) map[string]string {
	dim := strconv.Itoa(c.size)
	return map[string]string{
		"size": dim + "x" + dim,
		"data": data,
	}
}

// ImageURL returns the URL of the QR image for data, for clients that
// render it themselves.
func (c *Client) ImageURL(data string) string {
	q := url.Values{}
	for k, v := range c.params(data) {
		q.Set(k, v)
	}
	return strings.TrimRight(c.http.BaseURL, "/") + "/?" + q.Encode()
}

// Fetch downloads the PNG for data.
func (c *Client) Fetch(ctx context.Context, data string) ([]byte, error) {
	if data == "" {
		return nil, fmt.Errorf("qr data is empty")
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(c.params(data)).
		Get("/")
	if err != nil {
		return nil, fmt.Errorf("fetch qr code: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("qr service returned status %d", resp.StatusCode())
	}
	if ct := resp.Header().Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
		return nil, fmt.Errorf("qr service returned %s, want an image", ct)
	}
	body := resp.Body()
	if len(body) == 0 {
		return nil, fmt.Errorf("qr service returned an empty body")
	}
	return body, nil
}

// Payment describes what the payment QR on an invoice encodes.
type Payment struct {
	PayeeVPA   string // UPI id, e.g. pharmacy@okbank
	PayeeName  string
	BillNumber string
	Amount     float64
	GSTIN      string
}

// PaymentPayload returns a upi://pay link when a UPI id is known, and a
// plain bill summary otherwise.
func PaymentPayload(p Payment) string {
	amount := strconv.FormatFloat(p.Amount, 'f', 2, 64)
	if p.PayeeVPA != "" {
		q := url.Values{}
		q.Set("pa", p.PayeeVPA)
		q.Set("pn", p.PayeeName)
		q.Set("am", amount)
		q.Set("cu", "INR")
		q.Set("tn", "Bill "+p.BillNumber)
		return "upi://pay?" + q.Encode()
	}

	parts := []string{"BILL:" + p.BillNumber, "AMT:" + amount}
	if p.PayeeName != "" {
		parts = append(parts, "PAYEE:"+p.PayeeName)
	}
	if p.GSTIN != "" {
		parts = append(parts, "GSTIN:"+p.GSTIN)
	}
	return strings.Join(parts, "|")
}
