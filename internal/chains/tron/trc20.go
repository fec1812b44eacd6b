// internal/chains/tron/trc20.go
package tron

// USDT TRC20 contract addresses
const (
	USDTContractMainnet = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"
	USDTContractShasta  = "TG3XXyExBkPp9nzdajDZsozEu4BkaSJozs"
	USDTContractNile    = "TXLAQ63Xg1NAzckPwKHvzw7CSEmLMEqcdj"

	USDTDecimals = 6
)

// GetUSDTContract returns USDT contract address for network
func GetUSDTContract(network string) string {
	switch network {
	case "mainnet":
		return USDTContractMainnet
	case "shasta":
		return USDTContractShasta
	case "nile":
		return USDTContractNile
	default:
		return USDTContractMainnet
	}
}
