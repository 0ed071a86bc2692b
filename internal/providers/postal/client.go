// Package postal looks up Indian PIN codes against the public postal
// directory. Lookups are enrichment only: a failure here never fails a
// verification and never triggers a refund.
package postal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNoRecord is returned when the directory has no entry for the PIN.
var ErrNoRecord = errors.New("no record for pin code")

// ErrBadPIN is returned for inputs that are not six-digit PIN codes.
var ErrBadPIN = errors.New("pin code must be six digits")

// PostOffice is one delivery office serving a PIN code.
type PostOffice struct {
	Name     string `json:"Name"`
	District string `json:"District"`
	State    string `json:"State"`
	Country  string `json:"Country"`
	PINCode  string `json:"Pincode"`
}

// Directory resolves a PIN code to its serving post offices.
type Directory interface {
	Lookup(ctx context.Context, pinCode string) ([]PostOffice, error)
}

// Client calls the postalpincode.in-style JSON API.
type Client struct {
	baseURL string
	client  *http.Client
}

const defaultTimeout = 10 * time.Second

func NewClient(baseURL string, httpClient *http.Client) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.postalpincode.in"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{baseURL: baseURL, client: httpClient}
}

type lookupResponse struct {
	Status     string       `json:"Status"`
	Message    string       `json:"Message"`
	PostOffice []PostOffice `json:"PostOffice"`
}

// Lookup fetches the post offices for a six-digit PIN.
func (c *Client) Lookup(ctx context.Context, pinCode string) ([]PostOffice, error) {
	pinCode = strings.TrimSpace(pinCode)
	if !validPIN(pinCode) {
		return nil, fmt.Errorf("%w: %q", ErrBadPIN, pinCode)
	}

	endpoint := fmt.Sprintf("%s/pincode/%s", c.baseURL, url.PathEscape(pinCode))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("pin lookup: unexpected status %d", resp.StatusCode)
	}

	// The API wraps the result in a single-element array.
	var out []lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("pin lookup: decode response: %w", err)
	}
	if len(out) == 0 || !strings.EqualFold(out[0].Status, "Success") || len(out[0].PostOffice) == 0 {
		return nil, ErrNoRecord
	}
	return out[0].PostOffice, nil
}

func validPIN(pin string) bool {
	if len(pin) != 6 {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return pin[0] != '0'
}

var _ Directory = (*Client)(nil)
