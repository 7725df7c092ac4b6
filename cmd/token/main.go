// Command token issues a teacher bearer token for the /v1 API.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"qrattend/internal/auth"
	"qrattend/internal/config"
)

func main() {
	cfg := config.Load()
	subject := flag.String("sub", "", "teacher id")
	role := flag.String("role", auth.RoleTeacher, "teacher or admin")
	ttl := flag.Duration("ttl", cfg.AccessTTL, "token lifetime")
	flag.Parse()

	if *subject == "" {
		fmt.Fprintln(os.Stderr, "usage: token -sub <teacher-id> [-role teacher|admin] [-ttl 12h]")
		os.Exit(2)
	}
	tok, err := auth.Issue(*subject, *role, cfg.JWTIssuer, cfg.JWTSigningKey, *ttl, time.Now())
	if err != nil {
		fmt.Fprintln(os.Stderr, "issue token:", err)
		os.Exit(1)
	}
	fmt.Println(tok.Token)
	fmt.Fprintf(os.Stderr, "expires %s\n", tok.ExpiresAt.Format(time.RFC3339))
}
