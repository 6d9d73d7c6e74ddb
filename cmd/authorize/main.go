package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"investhor/internal/auth"
	"investhor/internal/config"
)

// One-time interactive authorization: prints the consent URL, exchanges
// the pasted code and seeds the token file the runners refresh from.
func main() {
	cfgPath := os.Getenv("INVESTHOR_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}
	cfg, err := config.Load(cfgPath, false)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	tokenPath := filepath.Join(cfg.App.ConfigDir, cfg.Auth.TokenFile)
	err = auth.Bootstrap(context.Background(), cfg.Auth, tokenPath, func(url string) (string, error) {
		fmt.Printf("Open the following URL and authorize the application:\n\n  %s\n\nPaste the code here: ", url)
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(line), nil
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println("token saved to", tokenPath)
}
