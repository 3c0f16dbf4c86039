// Command issue-token выпускает JWT для локальной работы с REST API.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/vladislavdragonenkov/epiccart/internal/auth"
	"github.com/vladislavdragonenkov/epiccart/internal/env"
)

const envJWTSecret = "EPICCART_JWT_SECRET"

func main() {
	if err := env.Load(".env", ".env.local"); err != nil {
		fail("load env files: %v", err)
	}
	if err := run(os.Args[1:], os.Getenv, os.Stdout); err != nil {
		fail("%v", err)
	}
}

func run(args []string, getenv func(string) string, out io.Writer) error {
	flags := flag.NewFlagSet("issue-token", flag.ContinueOnError)
	flags.SetOutput(io.Discard)

	userID := flags.String("user", "", "user id to put into the token")
	admin := flags.Bool("admin", false, "issue an admin token")
	ttl := flags.Duration("ttl", auth.DefaultTokenTTL, "token lifetime")
	header := flags.Bool("header", false, "print as an Authorization header")
	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	if strings.TrimSpace(*userID) == "" {
		return errors.New("-user is required")
	}
	secret := getenv(envJWTSecret)
	if secret == "" {
		return errors.New(envJWTSecret + " is required")
	}
	if *ttl <= 0 {
		*ttl = auth.DefaultTokenTTL
	}

	tokens, err := auth.NewTokenManager(secret, *ttl)
	if err != nil {
		return err
	}
	token, err := tokens.Issue(auth.Identity{UserID: strings.TrimSpace(*userID), IsAdmin: *admin})
	if err != nil {
		return err
	}

	if *header {
		_, err = fmt.Fprintf(out, "Authorization: Bearer %s\n", token)
	} else {
		_, err = fmt.Fprintln(out, token)
	}
	return err
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
