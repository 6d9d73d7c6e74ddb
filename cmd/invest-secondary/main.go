package main

import (
	"os"

	"investhor/internal/cli"
	"investhor/internal/service"
)

// Buys from the secondary market, then reconciles the account's own
// listings so fresh purchases go straight back on sale.
func main() {
	os.Exit(cli.Main(service.PolicyInvestSecondary, service.PolicySell))
}
