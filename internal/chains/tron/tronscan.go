// internal/chains/tron/tronscan.go
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

// TronscanClient reads TRC20 transfers from the public Tronscan API
type TronscanClient struct {
	client          *resty.Client
	defaultDecimals int32
	logger          *zap.Logger
}

func NewTronscanClient(baseURL string, timeout time.Duration, defaultDecimals int32, logger *zap.Logger) *TronscanClient {
	return &TronscanClient{
		client:          newHTTPClient(baseURL, timeout),
		defaultDecimals: defaultDecimals,
		logger:          logger,
	}
}

func (c *TronscanClient) Name() string { return ProviderTronscan }

func (c *TronscanClient) Keyed() bool { return false }

type tronscanResponse struct {
	Total          int              `json:"total"`
	TokenTransfers []tronscanRecord `json:"token_transfers"`
}

type tronscanRecord struct {
	TransactionID   string `json:"transaction_id"`
	BlockTS         int64  `json:"block_ts"`
	FromAddress     string `json:"from_address"`
	ToAddress       string `json:"to_address"`
	ContractAddress string `json:"contract_address"`
	Quant           string `json:"quant"`
	FinalResult     string `json:"finalResult"`
	TokenInfo       *struct {
		TokenID      string `json:"tokenId"`
		TokenAbbr    string `json:"tokenAbbr"`
		TokenDecimal *int32 `json:"tokenDecimal"`
	} `json:"tokenInfo"`
}

func (c *TronscanClient) FetchTransfers(ctx context.Context, q domain.TransferQuery) ([]domain.Transfer, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"limit":            strconv.Itoa(q.Limit),
			"start":            "0",
			"sort":             "-timestamp",
			"toAddress":        q.Address,
			"contract_address": q.Contract,
			"filterTokenValue": "0",
		}).
		Get("/api/token_trc20/transfers")
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", ProviderTronscan, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, statusError(ProviderTronscan, resp.StatusCode(), resp.Body())
	}

	transfers, err := parseTronscanTransfers(resp.Body(), q.Contract, c.defaultDecimals)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("tronscan transfers retrieved",
		zap.String("address", q.Address),
		zap.Int("count", len(transfers)))

	return transfers, nil
}

func parseTronscanTransfers(body []byte, contract string, defaultDecimals int32) ([]domain.Transfer, error) {
	var result tronscanResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, decodeError(ProviderTronscan, err)
	}

	transfers := make([]domain.Transfer, 0, len(result.TokenTransfers))
	for _, rec := range result.TokenTransfers {
		if rec.ContractAddress != "" && contract != "" && !SameAddress(rec.ContractAddress, contract) {
			continue
		}
		if rec.FinalResult != "" && rec.FinalResult != "SUCCESS" {
			continue
		}
		if rec.BlockTS <= 0 || rec.TransactionID == "" {
			continue
		}
		decimals := defaultDecimals
		if rec.TokenInfo != nil && rec.TokenInfo.TokenDecimal != nil {
			decimals = *rec.TokenInfo.TokenDecimal
		}
		amount, err := scaleAmount(rec.Quant, decimals)
		if err != nil {
			continue
		}

		transfers = append(transfers, domain.Transfer{
			To:        NormalizeAddress(rec.ToAddress),
			From:      NormalizeAddress(rec.FromAddress),
			Amount:    amount,
			Timestamp: fromMillis(rec.BlockTS),
			TxID:      rec.TransactionID,
			Provider:  ProviderTronscan,
		})
	}
	return transfers, nil
}
