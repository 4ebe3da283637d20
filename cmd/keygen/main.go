package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/tjfontaine/account-gateway/internal/auth"
)

func main() {
	jwtMode := flag.Bool("jwt", false, "mint a development JWT instead of hashing an API key")
	user := flag.String("user", "", "user id bound to the key or token subject")
	secret := flag.String("secret", os.Getenv("ACCT_AUTH__JWT_SECRET"), "JWT signing secret (defaults to ACCT_AUTH__JWT_SECRET)")
	issuer := flag.String("issuer", "", "JWT issuer claim")
	ttl := flag.Duration("ttl", 24*time.Hour, "JWT lifetime")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: keygen [-user id] <api-key>")
		fmt.Fprintln(os.Stderr, "       keygen -jwt -user id [-secret s] [-issuer iss] [-ttl 24h]")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *jwtMode {
		if *user == "" || *secret == "" {
			flag.Usage()
			os.Exit(1)
		}
		token, err := auth.IssueToken([]byte(*secret), *user, *issuer, *ttl, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to sign token: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	apiKey := flag.Arg(0)
	keyHash := auth.HashAPIKey(apiKey)
	userID := *user
	if userID == "" {
		userID = "<user-id>"
	}

	fmt.Printf("API Key: %s\n", apiKey)
	fmt.Printf("SHA-256 Hash: %s\n", keyHash)
	fmt.Println("\nAdd this to your config.yaml:")
	fmt.Printf("auth:\n")
	fmt.Printf("  api_keys:\n")
	fmt.Printf("    - key_hash: \"%s\"\n", keyHash)
	fmt.Printf("      user_id: \"%s\"\n", userID)
	fmt.Printf("      description: \"Generated key\"\n")
}
