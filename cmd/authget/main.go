// Command authget sends a single authenticated request through the pipeline
// and prints the response body. Configuration comes from AUTHPIPE_* variables,
// optionally loaded from a .env file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/guarzo/authpipe/common"
	"github.com/guarzo/authpipe/common/model"
	"github.com/guarzo/authpipe/modules/authhttp"
	"github.com/guarzo/authpipe/modules/refresh"
	"github.com/guarzo/authpipe/modules/tokenstore"
)

const (
	exitOK = iota
	exitError
	exitLoggedOut
)

func main() {
	// a missing .env is fine
	_ = godotenv.Load()

	method := flag.String("method", http.MethodGet, "HTTP method")
	data := flag.String("data", "", "JSON request body")
	session := flag.Bool("session", false, "print the stored session state and exit")
	logout := flag.Bool("logout", false, "drop the stored credentials and exit")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <endpoint>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, *method, *data, *session, *logout, flag.Args())
	stop()
	os.Exit(code)
}

func run(ctx context.Context, method, data string, session, logout bool, args []string) int {
	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitError
	}
	logger := common.NewLogger(cfg.LogLevel)

	storage := common.NewMemoryStorage()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Errorf("redis at %s unavailable: %v", cfg.RedisAddr, err)
			return exitError
		}
		storage = common.NewRedisStorage(rdb, "authpipe")
	}
	store := tokenstore.New(storage,
		tokenstore.WithKey(cfg.StorageKey),
		tokenstore.WithLeeway(cfg.ExpiryLeeway),
	)

	var auth common.AuthClient
	if cfg.OAuth2ClientID != "" {
		conf := refresh.NewOAuth2Config(cfg.OAuth2ClientID, cfg.OAuth2ClientSecret, cfg.RefreshURL)
		auth = refresh.NewOAuth2Refresher(conf, nil)
	} else {
		auth = refresh.NewHTTPRefresher(cfg.RefreshURL, nil)
	}

	client, err := authhttp.New(authhttp.Options{
		BaseURL:          cfg.BaseURL,
		UserAgent:        cfg.UserAgent,
		Timeout:          cfg.HTTPTimeout,
		Store:            store,
		Auth:             auth,
		AuthScheme:       cfg.AuthScheme,
		RefreshTimeout:   cfg.RefreshTimeout,
		ProactiveRefresh: cfg.ProactiveRefresh,
		Logger:           logger,
		Metrics:          common.NewMetrics(prometheus.DefaultRegisterer),
		OnLogout: func(reason error) {
			logger.Warnf("session ended, log in again: %v", reason)
		},
	})
	if err != nil {
		logger.Errorf("building client: %v", err)
		return exitError
	}

	if cfg.AccessToken != "" && cfg.RefreshToken != "" {
		pair := &model.Credentials{Access: cfg.AccessToken, Refresh: cfg.RefreshToken}
		if err := client.Login(ctx, pair); err != nil {
			logger.Errorf("storing seed credentials: %v", err)
			return exitError
		}
	}

	switch {
	case logout:
		if err := client.Logout(ctx); err != nil {
			logger.Errorf("logout: %v", err)
			return exitError
		}
		return exitOK
	case session:
		s, err := client.Session(ctx)
		if err != nil {
			logger.Errorf("reading session: %v", err)
			return exitError
		}
		fmt.Printf("logged_in=%t access_expired=%t expires_at=%s\n", s.LoggedIn, s.AccessExpired, s.ExpiresAt.Format(time.RFC3339))
		return exitOK
	}

	if len(args) != 1 {
		flag.Usage()
		return exitError
	}

	var body []byte
	if data != "" {
		body, err = client.DoRequest(ctx, method, args[0], strings.NewReader(data), http.StatusOK, http.StatusCreated, http.StatusNoContent)
	} else {
		body, err = client.DoRequest(ctx, method, args[0], nil, http.StatusOK, http.StatusCreated, http.StatusNoContent)
	}
	if err != nil {
		if errors.Is(err, refresh.ErrRefreshFailed) {
			fmt.Fprintf(os.Stderr, "Error: session expired: %v\n", err)
			return exitLoggedOut
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitError
	}
	fmt.Println(string(body))
	return exitOK
}
