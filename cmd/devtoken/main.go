// Command devtoken mints an access token for a demo roster member, for use
// against a server running with STORAGE_DRIVER=memory.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/cmlabs-hris/studio-payroll/internal/domain/user"
	"github.com/cmlabs-hris/studio-payroll/internal/fixtures"
	"github.com/cmlabs-hris/studio-payroll/internal/pkg/jwt"
	"github.com/joho/godotenv"
)

func main() {
	userID := flag.String("user", fixtures.HRManagerID, "demo user id")
	expiry := flag.String("exp", "24h", "token lifetime")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "failed to load .env file:", err)
		os.Exit(1)
	}
	secret := os.Getenv("JWT_SECRET_KEY")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET_KEY is required")
		os.Exit(1)
	}

	actor, ok := findActor(*userID)
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown demo user %q\n", *userID)
		os.Exit(1)
	}

	token, _, err := jwt.NewJWTService(secret, *expiry).GenerateAccessToken(actor)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to sign token:", err)
		os.Exit(1)
	}
	fmt.Println(token)
}

func findActor(id string) (user.Actor, bool) {
	for _, e := range fixtures.GetDemoEmployees() {
		if strings.EqualFold(e.ID, id) {
			return user.Actor{
				UserID:   e.ID,
				Name:     e.FullName,
				Role:     user.Role(e.Role),
				Position: e.Position,
			}, true
		}
	}
	return user.Actor{}, false
}
