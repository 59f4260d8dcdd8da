package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/EmpoweredVote/meresahar/internal/auth"
	"github.com/EmpoweredVote/meresahar/internal/db"
	"github.com/joho/godotenv"
)

var (
	username = flag.String("username", "", "Login name (required)")
	password = flag.String("password", "", "Password (default: env ADMIN_PASSWORD)")
	role     = flag.String("role", auth.RoleAdmin, "Role to grant: admin or user")
	dsn      = flag.String("dsn", "", "Postgres DSN (default: env DATABASE_URL)")
)

func main() {
	_ = godotenv.Load(".env.local")
	flag.Parse()
	*password = orEnv(*password, "ADMIN_PASSWORD")
	*dsn = orEnv(*dsn, "DATABASE_URL")

	if *username == "" || *password == "" {
		fatalf("--username and --password (or ADMIN_PASSWORD) are required")
	}
	if *role != auth.RoleAdmin && *role != auth.RoleUser {
		fatalf("--role must be %q or %q", auth.RoleAdmin, auth.RoleUser)
	}

	gdb, err := db.Connect(*dsn, 2)
	if err != nil {
		fatalf("connect: %v", err)
	}
	auth.Init(gdb)

	user, err := auth.CreateUser(gdb, *username, *password, *role)
	if errors.Is(err, auth.ErrUsernameTaken) {
		fatalf("user %q already exists", *username)
	}
	if err != nil {
		fatalf("create user: %v", err)
	}
	fmt.Printf("Created %s %s (%s)\n", user.Role, user.Username, user.UserID)
}

// orEnv falls back to the environment once .env.local has been loaded.
func orEnv(value, key string) string {
	if value != "" {
		return value
	}
	return os.Getenv(key)
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
