// internal/chains/tron/client.go
package tron

import (
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	ProviderTronGrid = "trongrid"
	ProviderTronscan = "tronscan"
	ProviderOKLink   = "oklink"
)

// newHTTPClient builds the resty client shared by all explorer providers
func newHTTPClient(baseURL string, timeout time.Duration) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
}
