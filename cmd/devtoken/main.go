// Command devtoken mints a client API token for local development and, when
// asked, prints the bcrypt hash to store in CRON_SECRET.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"salonpos/backend/internal/config"
	"salonpos/backend/internal/httpapi"
)

func main() {
	username := flag.String("user", "dev", "token subject")
	role := flag.String("role", httpapi.RoleManager, "cashier, manager or admin")
	hashCron := flag.Bool("hash-cron-secret", false, "print a bcrypt hash of CRON_SECRET instead of a token")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	logger := config.NewLogger(cfg.LogLevel, "text")
	logger.SetOutput(os.Stderr)

	if *hashCron {
		if cfg.CronSecret == "" {
			logger.Fatal("CRON_SECRET is empty")
		}
		hash, err := httpapi.HashSecret(cfg.CronSecret)
		if err != nil {
			logger.Fatalf("hash cron secret: %v", err)
		}
		fmt.Fprintln(os.Stdout, hash)
		return
	}

	if len(cfg.AuthSecret) < 32 {
		logger.Fatal("AUTH_SECRET must be set and at least 32 characters")
	}
	token, expiresAt, err := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL).Issue(*username, *role)
	if err != nil {
		logger.Fatalf("issue token: %v", err)
	}
	logger.WithFields(logrus.Fields{"user": *username, "role": *role, "expires_at": expiresAt}).Info("token issued")
	fmt.Fprintln(os.Stdout, token)
}
