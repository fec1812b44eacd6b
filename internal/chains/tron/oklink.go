// internal/chains/tron/oklink.go
package tron

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"deposit-service/internal/domain"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OKLinkClient reads token transfers from the OKLink explorer API. Amounts are
// already expressed in human units.
type OKLinkClient struct {
	client *resty.Client
	apiKey string
	logger *zap.Logger
}

func NewOKLinkClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *OKLinkClient {
	return &OKLinkClient{
		client: newHTTPClient(baseURL, timeout),
		apiKey: apiKey,
		logger: logger,
	}
}

func (c *OKLinkClient) Name() string { return ProviderOKLink }

func (c *OKLinkClient) Keyed() bool { return false }

type oklinkResponse struct {
	Code string       `json:"code"`
	Msg  string       `json:"msg"`
	Data []oklinkPage `json:"data"`
}

type oklinkPage struct {
	TransactionList []oklinkRecord `json:"transactionList"`
}

type oklinkRecord struct {
	TxID                 string `json:"txId"`
	TransactionTime      string `json:"transactionTime"`
	From                 string `json:"from"`
	To                   string `json:"to"`
	TokenContractAddress string `json:"tokenContractAddress"`
	Amount               string `json:"amount"`
	State                string `json:"state"`
}

func (c *OKLinkClient) FetchTransfers(ctx context.Context, q domain.TransferQuery) ([]domain.Transfer, error) {
	req := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"chainShortName":       "TRON",
			"address":              q.Address,
			"protocolType":         "token_20",
			"tokenContractAddress": q.Contract,
			"limit":                strconv.Itoa(min(q.Limit, 100)),
		})
	if c.apiKey != "" {
		req.SetHeader("Ok-Access-Key", c.apiKey)
	}

	resp, err := req.Get("/api/v5/explorer/address/token-transaction-list")
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", ProviderOKLink, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, statusError(ProviderOKLink, resp.StatusCode(), resp.Body())
	}

	transfers, err := parseOKLinkTransfers(resp.Body(), q.Contract)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("oklink transfers retrieved",
		zap.String("address", q.Address),
		zap.Int("count", len(transfers)))

	return transfers, nil
}

func parseOKLinkTransfers(body []byte, contract string) ([]domain.Transfer, error) {
	var result oklinkResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, decodeError(ProviderOKLink, err)
	}
	if result.Code != "" && result.Code != "0" {
		return nil, &ResponseError{Provider: ProviderOKLink, StatusCode: http.StatusOK, Body: result.Code + " " + result.Msg}
	}

	var transfers []domain.Transfer
	for _, page := range result.Data {
		for _, rec := range page.TransactionList {
			if rec.TokenContractAddress != "" && contract != "" && !SameAddress(rec.TokenContractAddress, contract) {
				continue
			}
			if rec.State != "" && rec.State != "success" {
				continue
			}
			ms, err := strconv.ParseInt(rec.TransactionTime, 10, 64)
			if err != nil || ms <= 0 || rec.TxID == "" {
				continue
			}
			amount, err := decimal.NewFromString(rec.Amount)
			if err != nil || amount.IsNegative() {
				continue
			}

			transfers = append(transfers, domain.Transfer{
				To:        NormalizeAddress(rec.To),
				From:      NormalizeAddress(rec.From),
				Amount:    amount,
				Timestamp: fromMillis(ms),
				TxID:      rec.TxID,
				Provider:  ProviderOKLink,
			})
		}
	}
	return transfers, nil
}
