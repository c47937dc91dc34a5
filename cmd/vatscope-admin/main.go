// Command vatscope-admin is a terminal dashboard for the admin API of a
// vatscope server. With -hash-password it prints a bcrypt hash for
// admin.password_hash instead.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/unklstewy/vatscope/internal/auth"
	"github.com/unklstewy/vatscope/pkg/config"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	serverURL := flag.String("server", "", "Server base URL (overrides radar.server_url)")
	refresh := flag.Duration("refresh", time.Minute, "Dashboard refresh interval")
	hashPassword := flag.Bool("hash-password", false, "Read a password and print its bcrypt hash")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if *hashPassword {
		if err := printHash(cfg.Admin.BCryptCost); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	base := cfg.Radar.ServerURL
	if *serverURL != "" {
		base = *serverURL
	}
	if base == "" {
		fmt.Fprintln(os.Stderr, "No server URL: set radar.server_url or -server")
		os.Exit(1)
	}

	app := NewApp(newAdminClient(base, 15*time.Second), *refresh)
	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running console: %v\n", err)
		os.Exit(1)
	}
}

// printHash reads a password from the terminal, or one line of stdin when
// it is not a terminal, and prints its hash.
func printHash(cost int) error {
	var password string
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, "Password: ")
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		password = string(raw)
	} else {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		return fmt.Errorf("empty password")
	}

	hash, err := auth.NewService(auth.Config{BCryptCost: cost}).HashPassword(password)
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}
