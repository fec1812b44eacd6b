// internal/chains/tron/trongrid.go
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
	"go.uber.org/zap"
)

// TronGridClient reads TRC20 transfer history from TronGrid. Requests carry a
// TRON-PRO-API-KEY chosen by the caller.
type TronGridClient struct {
	client          *resty.Client
	defaultDecimals int32
	logger          *zap.Logger
}

// NewTronGridClient creates a new HTTP client for TronGrid
func NewTronGridClient(baseURL string, timeout time.Duration, defaultDecimals int32, logger *zap.Logger) *TronGridClient {
	return &TronGridClient{
		client:          newHTTPClient(baseURL, timeout),
		defaultDecimals: defaultDecimals,
		logger:          logger,
	}
}

func (c *TronGridClient) Name() string { return ProviderTronGrid }

func (c *TronGridClient) Keyed() bool { return true }

// trc20Response represents /v1/accounts/{address}/transactions/trc20
type trc20Response struct {
	Success bool          `json:"success"`
	Error   string        `json:"error"`
	Data    []trc20Record `json:"data"`
}

type trc20Record struct {
	TransactionID  string `json:"transaction_id"`
	BlockTimestamp int64  `json:"block_timestamp"`
	From           string `json:"from"`
	To             string `json:"to"`
	Type           string `json:"type"`
	Value          string `json:"value"`
	TokenInfo      *struct {
		Symbol   string `json:"symbol"`
		Address  string `json:"address"`
		Decimals *int32 `json:"decimals"`
		Name     string `json:"name"`
	} `json:"token_info"`
}

// FetchTransfers gets recent incoming TRC20 transfers to q.Address, newest first
func (c *TronGridClient) FetchTransfers(ctx context.Context, q domain.TransferQuery) ([]domain.Transfer, error) {
	req := c.client.R().
		SetContext(ctx).
		SetPathParam("address", q.Address).
		SetQueryParams(map[string]string{
			"limit":            strconv.Itoa(q.Limit),
			"contract_address": q.Contract,
			"only_to":          "true",
			"only_confirmed":   "true",
			"order_by":         "block_timestamp,desc",
		})
	if q.APIKey != "" {
		req.SetHeader("TRON-PRO-API-KEY", q.APIKey)
	}

	resp, err := req.Get("/v1/accounts/{address}/transactions/trc20")
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", ProviderTronGrid, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, statusError(ProviderTronGrid, resp.StatusCode(), resp.Body())
	}

	transfers, err := parseTronGridTransfers(resp.Body(), q.Contract, c.defaultDecimals)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("trongrid transfers retrieved",
		zap.String("address", q.Address),
		zap.Int("count", len(transfers)))

	return transfers, nil
}

func parseTronGridTransfers(body []byte, contract string, defaultDecimals int32) ([]domain.Transfer, error) {
	var result trc20Response
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, decodeError(ProviderTronGrid, err)
	}
	if !result.Success && result.Error != "" {
		return nil, &ResponseError{Provider: ProviderTronGrid, StatusCode: http.StatusOK, Body: result.Error}
	}

	transfers := make([]domain.Transfer, 0, len(result.Data))
	for _, rec := range result.Data {
		decimals := defaultDecimals
		if rec.TokenInfo != nil {
			if rec.TokenInfo.Address != "" && contract != "" && !SameAddress(rec.TokenInfo.Address, contract) {
				continue
			}
			if rec.TokenInfo.Decimals != nil {
				decimals = *rec.TokenInfo.Decimals
			}
		}
		if rec.Type != "" && rec.Type != "Transfer" {
			continue
		}
		if rec.BlockTimestamp <= 0 || rec.TransactionID == "" {
			continue
		}
		amount, err := scaleAmount(rec.Value, decimals)
		if err != nil {
			continue
		}

		transfers = append(transfers, domain.Transfer{
			To:        NormalizeAddress(rec.To),
			From:      NormalizeAddress(rec.From),
			Amount:    amount,
			Timestamp: fromMillis(rec.BlockTimestamp),
			TxID:      rec.TransactionID,
			Provider:  ProviderTronGrid,
		})
	}
	return transfers, nil
}
