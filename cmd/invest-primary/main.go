package main

import (
	"os"

	"investhor/internal/cli"
	"investhor/internal/service"
)

func main() {
	os.Exit(cli.Main(service.PolicyInvestPrimary))
}
