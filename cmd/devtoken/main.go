// Command devtoken prints a bearer token for local development, signed with
// the configured development key.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	jwttoken "popai/internal/jwt_token"
	"popai/internal/platform/config"
	"popai/pkg/domain"
)

func main() {
	configPath := pflag.String("config", "", "path to a YAML config file")
	subject := pflag.StringP("subject", "s", "", "identity to put in the token subject")
	ttl := pflag.Duration("ttl", time.Hour, "token lifetime")
	pflag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Environment == "production" {
		fmt.Fprintln(os.Stderr, "devtoken refuses to run with environment=production")
		os.Exit(1)
	}
	identity, err := domain.ParseIdentity(*subject)
	if err != nil {
		fmt.Fprintf(os.Stderr, "subject: %v\n", err)
		os.Exit(2)
	}

	svc := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
	token, err := svc.GenerateAccessToken(identity.String(), *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
