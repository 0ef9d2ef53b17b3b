package pricefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// DefaultURL queries the bitcoin price in euro.
const DefaultURL = "https://api.coingecko.com/api/v3/simple/price?ids=bitcoin&vs_currencies=eur"

const maxBodyBytes = 1 << 16

// HTTPFetcher reads bitcoin.eur from a CoinGecko compatible endpoint.
type HTTPFetcher struct {
	url    string
	client *http.Client
	now    func() time.Time
}

func NewHTTPFetcher(url string, client *http.Client) *HTTPFetcher {
	if client == nil {
		client = newHTTPClient()
	}
	return &HTTPFetcher{url: url, client: client, now: time.Now}
}

type simplePrice struct {
	Bitcoin struct {
		EUR *float64 `json:"eur"`
	} `json:"bitcoin"`
}

func (f *HTTPFetcher) Fetch(ctx context.Context) (Quote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return Quote{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("fetch quote: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("fetch quote: unexpected status %d", resp.StatusCode)
	}

	var body simplePrice
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&body); err != nil {
		return Quote{}, fmt.Errorf("decode quote: %w", err)
	}
	if body.Bitcoin.EUR == nil {
		return Quote{}, errors.New("decode quote: missing bitcoin.eur")
	}
	if *body.Bitcoin.EUR <= 0 {
		return Quote{}, fmt.Errorf("decode quote: non-positive rate %v", *body.Bitcoin.EUR)
	}
	return Quote{Rate: *body.Bitcoin.EUR, FetchedAt: f.now().UTC(), Source: req.URL.Host}, nil
}

func newHTTPClient() *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: 30 * time.Second}
}
