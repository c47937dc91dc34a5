package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/unklstewy/vatscope/pkg/config"
)

func TestConnString(t *testing.T) {
	cfg := config.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		Username: "vatscope",
		Password: "s3cret",
		Database: "vatscope",
		SSLMode:  "disable",
	}

	t.Run("Plain values", func(t *testing.T) {
		want := "host=localhost port=5432 user=vatscope password=s3cret dbname=vatscope sslmode=disable"
		if got := connString(cfg); got != want {
			t.Errorf("Expected %q, got %q", want, got)
		}
	})

	t.Run("Quoted password", func(t *testing.T) {
		c := cfg
		c.Password = `it's a pass`
		got := connString(c)
		if !strings.Contains(got, `password='it\'s a pass'`) {
			t.Errorf("Expected quoted password, got %q", got)
		}
	})

	t.Run("Empty password", func(t *testing.T) {
		c := cfg
		c.Password = ""
		if got := connString(c); !strings.Contains(got, "password=''") {
			t.Errorf("Expected empty quoted password, got %q", got)
		}
	})
}

func TestRedacted(t *testing.T) {
	cfg := config.DatabaseConfig{Host: "db", Port: 5432, Username: "u", Password: "hunter2", Database: "vatscope", SSLMode: "require"}

	got := Redacted(cfg)
	if strings.Contains(got, "hunter2") {
		t.Errorf("Expected password masked, got %q", got)
	}
	if !strings.HasPrefix(got, "postgres://u:") || !strings.Contains(got, "db:5432/vatscope") {
		t.Errorf("Unexpected DSN %q", got)
	}
}

func TestConnectUnreachable(t *testing.T) {
	cfg := config.DatabaseConfig{
		Host:         "127.0.0.1",
		Port:         1,
		Username:     "nobody",
		Database:     "none",
		SSLMode:      "disable",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	db, err := Connect(ctx, cfg)
	if err == nil {
		db.Close()
		t.Skip("Unexpected database listening on port 1")
	}
	if !strings.Contains(err.Error(), "failed to ping database") {
		t.Errorf("Expected ping failure, got %v", err)
	}
}

func TestHealthCheckNil(t *testing.T) {
	if err := HealthCheck(context.Background(), nil); err == nil {
		t.Error("Expected error for nil database")
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"refused", errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"), true},
		{"wrapped reset", fmt.Errorf("query: %w", errors.New("read: connection reset by peer")), true},
		{"EOF", errors.New("unexpected EOF"), true},
		{"syntax", errors.New(`pq: syntax error at or near "SELEC"`), false},
		{"pq connection failure", &pq.Error{Code: "08006"}, true},
		{"pq admin shutdown", &pq.Error{Code: "57P01"}, true},
		{"pq unique violation", &pq.Error{Code: "23505"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsConnectionError(tt.err); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestWithRetry(t *testing.T) {
	t.Run("Non-connection error is not retried", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			return errors.New("constraint violated")
		}, 3)
		if err == nil || calls != 1 {
			t.Errorf("Expected 1 call with error, got %d calls err=%v", calls, err)
		}
	})

	t.Run("Connection error retried until success", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			if calls < 2 {
				return errors.New("connection refused")
			}
			return nil
		}, 3)
		if err != nil || calls != 2 {
			t.Errorf("Expected success on call 2, got %d calls err=%v", calls, err)
		}
	})

	t.Run("Cancelled context stops waiting", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := WithRetry(ctx, func() error { return errors.New("broken pipe") }, 3)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	})
}
