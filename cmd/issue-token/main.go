// Command issue-token mints an access token for a service account or an
// operator. It is used to bootstrap the first admin caller and to hand
// ingestion credentials to the services that record ledger entries.
//
// Usage:
//
//	issue-token --subject=ops@example.com --role=admin [--ttl=1h]
//
// Requires AUTH_JWT_SECRET (and CONFIG_PATH or the other env settings).
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/heartmarshall/ledger-backend/internal/auth"
	"github.com/heartmarshall/ledger-backend/internal/config"
	"github.com/heartmarshall/ledger-backend/internal/domain"
)

func main() {
	subject := flag.String("subject", "", "token subject (user or service id)")
	role := flag.String("role", string(domain.UserRoleUser), "role claim: user, admin or system")
	ttl := flag.Duration("ttl", 0, "token lifetime (default: AUTH_ACCESS_TOKEN_TTL)")
	flag.Parse()

	if *subject == "" {
		fmt.Fprintln(os.Stderr, "Usage: issue-token --subject=ops@example.com --role=admin")
		os.Exit(1)
	}
	if !domain.UserRole(*role).IsValid() {
		fmt.Fprintf(os.Stderr, "unknown role %q\n", *role)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	lifetime := cfg.Auth.AccessTokenTTL
	if *ttl > 0 {
		lifetime = *ttl
	}

	tokens := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, lifetime)
	token, err := tokens.GenerateAccessToken(*subject, *role)
	if err != nil {
		log.Fatalf("issue token: %v", err)
	}

	fmt.Println(token)
}
