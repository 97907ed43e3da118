// Command fedi-tail follows a streaming timeline or walks a paginated one
// on a Mastodon-compatible instance and prints one line per item.
//
// Usage:
//
//	fedi-tail [flags] stream user|public|local|direct
//	fedi-tail [flags] stream hashtag <tag>
//	fedi-tail [flags] stream list <id>
//	fedi-tail [flags] timeline home|public|local|notifications
//	fedi-tail [flags] timeline tag <tag>
//	fedi-tail [flags] timeline account|followers|following <id>
//	fedi-tail [flags] instance
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/Sternrassler/fediverse-client/pkg/client"
	"github.com/Sternrassler/fediverse-client/pkg/credentials"
	"github.com/Sternrassler/fediverse-client/pkg/entities"
	"github.com/Sternrassler/fediverse-client/pkg/logging"
	"github.com/Sternrassler/fediverse-client/pkg/metrics"
	"github.com/Sternrassler/fediverse-client/pkg/pagination"
	"github.com/Sternrassler/fediverse-client/pkg/stream"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

const (
	defaultUserAgent = "fedi-tail/0.1.0 (+https://github.com/Sternrassler/fediverse-client)"

	// redisCredentialsPrefix selects the Redis credential store in
	// --credentials, e.g. "redis:my-bot".
	redisCredentialsPrefix = "redis:"
)

var errUsage = errors.New("usage")

type options struct {
	baseURL     string
	token       string
	redisURL    string
	credentials string
	userAgent   string
	logLevel    string
	pretty      bool
	metricsAddr string

	sse         bool
	maxFailures int
	limit       int
	pages       int
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Getenv, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, errUsage) || errors.Is(err, pflag.ErrHelp) {
			os.Exit(2)
		}
		log.Error().Err(err).Msg("fedi-tail failed")
		os.Exit(1)
	}
}

// parseFlags reads flags from args, falling back to the environment for
// connection settings.
func parseFlags(args []string, getenv func(string) string, stderr io.Writer) (*options, []string, error) {
	opts := &options{}
	fs := pflag.NewFlagSet("fedi-tail", pflag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&opts.baseURL, "base-url", getEnv(getenv, "FEDI_BASE_URL", ""), "instance URL, e.g. https://social.example (env FEDI_BASE_URL)")
	fs.StringVar(&opts.token, "token", getEnv(getenv, "FEDI_TOKEN", ""), "OAuth access token (env FEDI_TOKEN)")
	fs.StringVar(&opts.redisURL, "redis-url", getEnv(getenv, "REDIS_URL", ""), "Redis address or redis:// URL for shared rate limits and caching (env REDIS_URL)")
	fs.StringVar(&opts.credentials, "credentials", getEnv(getenv, "FEDI_CREDENTIALS", ""), `credentials YAML file, or "redis:<name>" (env FEDI_CREDENTIALS)`)
	fs.StringVar(&opts.userAgent, "user-agent", getEnv(getenv, "FEDI_USER_AGENT", defaultUserAgent), "User-Agent header")
	fs.StringVar(&opts.logLevel, "log-level", getEnv(getenv, "LOG_LEVEL", string(logging.LevelInfo)), "debug, info, warn or error")
	fs.BoolVar(&opts.pretty, "pretty", false, "human-readable logs")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve /metrics and /health on this address")

	fs.BoolVar(&opts.sse, "sse", false, "stream over HTTP server-sent events instead of WebSocket")
	fs.IntVar(&opts.maxFailures, "max-failures", 0, "skip undecodable frames until this many in a row (0 reports each)")
	fs.IntVar(&opts.limit, "limit", 0, "items per page")
	fs.IntVar(&opts.pages, "pages", 1, "pages to walk, 0 for all")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if opts.pages < 0 {
		return nil, nil, fmt.Errorf("%w: --pages must be >= 0", errUsage)
	}
	return opts, fs.Args(), nil
}

func run(ctx context.Context, args []string, getenv func(string) string, stdout, stderr io.Writer) error {
	opts, rest, err := parseFlags(args, getenv, stderr)
	if err != nil {
		return err
	}

	logging.Setup(logging.Config{
		Level:  logging.LogLevel(opts.logLevel),
		Pretty: opts.pretty,
		Output: stderr,
	})

	if len(rest) == 0 {
		fmt.Fprintln(stderr, "fedi-tail: expected a command: stream, timeline or instance")
		return errUsage
	}

	redisClient, err := connectRedis(ctx, opts.redisURL)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	if err := applyCredentials(ctx, opts, redisClient); err != nil {
		return err
	}

	c, err := newClient(opts, redisClient)
	if err != nil {
		return err
	}
	defer c.Close()

	if opts.metricsAddr != "" {
		stopMetrics := serveMetrics(opts.metricsAddr)
		defer stopMetrics()
	}

	switch rest[0] {
	case "stream":
		return runStream(ctx, c, opts, rest[1:], stdout)
	case "timeline":
		return runTimeline(ctx, c, opts, rest[1:], stdout)
	case "instance":
		return runInstance(ctx, c, stdout)
	default:
		fmt.Fprintf(stderr, "fedi-tail: unknown command %q\n", rest[0])
		return errUsage
	}
}

// connectRedis returns nil when url is empty.
func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}

	var redisOpts *redis.Options
	if strings.Contains(url, "://") {
		parsed, err := redis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		redisOpts = parsed
	} else {
		redisOpts = &redis.Options{Addr: url}
	}

	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		redisClient.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	log.Info().Str("addr", redisOpts.Addr).Msg("Connected to Redis")
	return redisClient, nil
}

// applyCredentials fills base URL and token from the credential store.
// Explicit flags win.
func applyCredentials(ctx context.Context, opts *options, redisClient *redis.Client) error {
	if opts.credentials == "" {
		return nil
	}

	var store credentials.Store
	if name, ok := strings.CutPrefix(opts.credentials, redisCredentialsPrefix); ok {
		if redisClient == nil {
			return fmt.Errorf("%s credentials need --redis-url", opts.credentials)
		}
		store = credentials.NewRedisStore(redisClient, name)
	} else {
		store = credentials.NewFileStore(opts.credentials)
	}

	data, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	if opts.baseURL == "" {
		opts.baseURL = data.Base
	}
	if opts.token == "" {
		opts.token = data.Token
	}
	return nil
}

func newClient(opts *options, redisClient *redis.Client) (*client.Client, error) {
	cfg := client.DefaultConfig(opts.baseURL, opts.userAgent)
	cfg.Redis = redisClient
	if opts.token != "" {
		cfg.Auth = client.BearerToken(opts.token)
	}
	c, err := client.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	return c, nil
}

// serveMetrics starts the metrics server and returns its shutdown.
func serveMetrics(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", healthHandler)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Serving metrics")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func streamRequest(opts *options, args []string) (client.StreamRequest, error) {
	req := client.StreamRequest{
		Reader: stream.ReaderConfig{MaxConsecutiveFailures: opts.maxFailures},
	}
	if len(args) == 0 {
		return req, fmt.Errorf("%w: stream needs a kind", errUsage)
	}

	switch args[0] {
	case "user":
		req.Stream = client.StreamKindUser
	case "public":
		req.Stream = client.StreamKindPublic
	case "local":
		req.Stream = client.StreamKindPublicLocal
	case "direct":
		req.Stream = client.StreamKindDirect
	case "hashtag", "hashtag:local":
		if len(args) < 2 {
			return req, fmt.Errorf("%w: stream %s needs a tag", errUsage, args[0])
		}
		req.Stream = client.StreamKind(args[0])
		req.Tag = strings.TrimPrefix(args[1], "#")
	case "list":
		if len(args) < 2 {
			return req, fmt.Errorf("%w: stream list needs a list id", errUsage)
		}
		req.Stream = client.StreamKindList
		req.List = args[1]
	default:
		return req, fmt.Errorf("%w: unknown stream %q", errUsage, args[0])
	}
	return req, nil
}

func runStream(ctx context.Context, c *client.Client, opts *options, args []string, stdout io.Writer) error {
	req, err := streamRequest(opts, args)
	if err != nil {
		return err
	}

	var reader *stream.Reader
	if opts.sse {
		reader, err = c.StreamHTTP(ctx, req)
	} else {
		reader, err = c.DialStream(ctx, req)
	}
	if err != nil {
		return err
	}
	defer reader.Close()

	// Close unblocks a pending read once the caller gives up.
	go func() {
		<-ctx.Done()
		reader.Close()
	}()

	for {
		for reader.Next() {
			fmt.Fprintln(stdout, formatEvent(reader.Value()))
		}

		err := reader.Err()
		var frameErr *stream.FrameError
		switch {
		case errors.As(err, &frameErr):
			log.Warn().Err(frameErr).Str("event", frameErr.Frame.EventName).Msg("Undecodable frame")
			continue
		case ctx.Err() != nil, errors.Is(err, stream.ErrReaderClosed):
			return nil
		case errors.Is(err, io.EOF):
			log.Info().Msg("Stream ended by the server")
			return nil
		default:
			return err
		}
	}
}

func runTimeline(ctx context.Context, c *client.Client, opts *options, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: timeline needs a kind", errUsage)
	}
	pageOpts := &client.PageOptions{Limit: opts.limit}

	arg := func() (string, error) {
		if len(args) < 2 {
			return "", fmt.Errorf("%w: timeline %s needs an argument", errUsage, args[0])
		}
		return args[1], nil
	}

	switch args[0] {
	case "home":
		page, err := c.HomeTimeline(ctx, pageOpts)
		return printPages(ctx, page, err, opts.pages, stdout, formatStatus)
	case "public", "local":
		page, err := c.PublicTimeline(ctx, args[0] == "local", pageOpts)
		return printPages(ctx, page, err, opts.pages, stdout, formatStatus)
	case "tag":
		tag, err := arg()
		if err != nil {
			return err
		}
		page, err := c.HashtagTimeline(ctx, strings.TrimPrefix(tag, "#"), false, pageOpts)
		return printPages(ctx, page, err, opts.pages, stdout, formatStatus)
	case "account":
		id, err := arg()
		if err != nil {
			return err
		}
		page, err := c.AccountStatuses(ctx, id, pageOpts)
		return printPages(ctx, page, err, opts.pages, stdout, formatStatus)
	case "followers", "following":
		id, err := arg()
		if err != nil {
			return err
		}
		var page *pagination.Page[entities.Account]
		if args[0] == "followers" {
			page, err = c.Followers(ctx, id, pageOpts)
		} else {
			page, err = c.Following(ctx, id, pageOpts)
		}
		return printPages(ctx, page, err, opts.pages, stdout, formatAccount)
	case "notifications":
		page, err := c.Notifications(ctx, pageOpts)
		return printPages(ctx, page, err, opts.pages, stdout, formatNotification)
	default:
		return fmt.Errorf("%w: unknown timeline %q", errUsage, args[0])
	}
}

// printPages prints the first page and up to maxPages-1 following ones;
// maxPages 0 walks to the end.
func printPages[T any](ctx context.Context, page *pagination.Page[T], err error, maxPages int, stdout io.Writer, format func(T) string) error {
	if err != nil {
		return err
	}

	for _, item := range page.InitialItems {
		fmt.Fprintln(stdout, format(item))
	}

	for fetched := 1; maxPages == 0 || fetched < maxPages; fetched++ {
		items, ok, err := page.NextPage(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		for _, item := range items {
			fmt.Fprintln(stdout, format(item))
		}
	}
	return nil
}

func runInstance(ctx context.Context, c *client.Client, stdout io.Writer) error {
	instance, err := c.Instance(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s (%s) version %s\n", instance.Title, instance.URI, instance.Version)
	if instance.URLs != nil && instance.URLs.StreamingAPI != "" {
		fmt.Fprintf(stdout, "streaming: %s\n", instance.URLs.StreamingAPI)
	}
	return nil
}

var htmlTag = regexp.MustCompile(`<[^>]*>`)

func plainText(html string) string {
	return strings.Join(strings.Fields(htmlTag.ReplaceAllString(html, " ")), " ")
}

func formatStatus(s entities.Status) string {
	return fmt.Sprintf("%s @%s: %s", s.ID, s.Account.Acct, plainText(s.Content))
}

func formatAccount(a entities.Account) string {
	return fmt.Sprintf("%s @%s %s", a.ID, a.Acct, a.DisplayName)
}

func formatNotification(n entities.Notification) string {
	line := fmt.Sprintf("%s %s from @%s", n.ID, n.Type, n.Account.Acct)
	if n.Status != nil {
		line += ": " + plainText(n.Status.Content)
	}
	return line
}

func formatEvent(ev stream.Event) string {
	switch e := ev.(type) {
	case stream.UpdateEvent:
		return "update " + formatStatus(e.Status)
	case stream.NotificationEvent:
		return "notification " + formatNotification(e.Notification)
	case stream.DeleteEvent:
		return "delete " + e.StatusID
	default:
		return ev.EventName()
	}
}

func getEnv(getenv func(string) string, key, defaultValue string) string {
	if value := getenv(key); value != "" {
		return value
	}
	return defaultValue
}
