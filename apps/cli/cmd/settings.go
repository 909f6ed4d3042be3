package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/hitfetch/packages/core/config"
	"github.com/abdul-hamid-achik/hitfetch/packages/core/env"
	"github.com/abdul-hamid-achik/hitfetch/packages/dns"
	"github.com/abdul-hamid-achik/hitfetch/packages/http"
	"github.com/abdul-hamid-achik/hitfetch/packages/notify"
	"github.com/abdul-hamid-achik/hitfetch/packages/spec"
)

// Environment variable helpers
func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1" || val == "yes"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(val, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// loadSettings reads the config file and applies the persistent flags on top.
func loadSettings() (*config.Config, error) {
	cfg, err := config.LoadConfig(configFlag)
	if err != nil {
		return nil, exitWith(ExitConfigError, err)
	}

	overrides := &config.Config{DNSServers: dnsServersFlag, EnvFile: envFileFlag}
	if insecureFlag {
		overrides.Insecure = config.BoolPtr(true)
	}
	if noColorFlag {
		overrides.NoColor = config.BoolPtr(true)
	}
	cfg = cfg.Merge(overrides)

	if err := cfg.Validate(); err != nil {
		return nil, exitWith(ExitConfigError, err)
	}
	return cfg, nil
}

func newLogger(w io.Writer, verbosity int) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: verbosity < 3})
	switch {
	case verbosity >= 3:
		l.SetLevel(logrus.TraceLevel)
	case verbosity == 2:
		l.SetLevel(logrus.DebugLevel)
	case verbosity == 1:
		l.SetLevel(logrus.InfoLevel)
	default:
		l.SetLevel(logrus.WarnLevel)
	}
	return l
}

func newResolver(servers []string) dns.Resolver {
	if len(servers) == 0 {
		return dns.NewDefaultResolver()
	}
	return &dns.HostsResolver{Next: &dns.FallbackResolver{
		Primary:   dns.NewWireResolver(servers...),
		Secondary: &dns.SystemResolver{},
	}}
}

func newDNSCache(cfg *config.Config, logger logrus.FieldLogger) (*dns.Cache, error) {
	opts := []dns.Option{dns.WithLogger(logger)}
	if cfg.DNSCacheSize > 0 {
		opts = append(opts, dns.WithSize(cfg.DNSCacheSize))
	}
	if cfg.DNSMinTTL > 0 {
		opts = append(opts, dns.WithMinTTL(time.Duration(cfg.DNSMinTTL)*time.Millisecond))
	}
	return dns.NewCache(newResolver(cfg.DNSServers), opts...)
}

func newClient(cfg *config.Config, logger logrus.FieldLogger) (*http.Client, error) {
	cache, err := newDNSCache(cfg, logger)
	if err != nil {
		return nil, exitWith(ExitConfigError, err)
	}

	opts := []http.ClientOption{
		http.WithDNSCache(cache),
		http.WithLogger(logger),
		http.WithDefaultHeaders(cfg.Headers),
	}
	if cfg.MaxRedirects > 0 {
		opts = append(opts, http.WithMaxRedirects(cfg.MaxRedirects))
	}
	if cfg.DialTimeout > 0 {
		opts = append(opts, http.WithDialTimeout(time.Duration(cfg.DialTimeout)*time.Millisecond))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, http.WithDefaultHeader("User-Agent", cfg.UserAgent))
	}
	if cfg.GetInsecure() {
		opts = append(opts, http.WithInsecureSkipVerify())
	}
	return http.NewClient(opts...), nil
}

// requestFlags are the request-shaping flags shared by fetch, bench and validate.
type requestFlags struct {
	headers     []string
	query       []string
	form        []string
	data        string
	json        bool
	text        bool
	compressed  bool
	noCompress  bool
	destination string
	timeout     string
	maxSize     int64
}

func addRequestFlags(cmd *cobra.Command, f *requestFlags) {
	fl := cmd.Flags()
	fl.StringArrayVarP(&f.headers, "header", "H", nil, `Request header "Name: value" (repeatable)`)
	fl.StringArrayVar(&f.query, "query", nil, "Query parameter name=value (repeatable)")
	fl.StringArrayVarP(&f.form, "form", "F", nil, "Multipart field name=value or name=@path (repeatable)")
	fl.StringVarP(&f.data, "data", "d", "", "JSON request body")
	fl.BoolVar(&f.json, "json", false, "Decode application/json responses")
	fl.BoolVar(&f.text, "text", false, "Decode text/* responses as UTF-8")
	fl.BoolVar(&f.compressed, "compressed", false, "Request and decode br, gzip and deflate bodies")
	fl.BoolVar(&f.noCompress, "no-compressed", false, "Disable compression even when the config enables it")
	fl.StringVarP(&f.destination, "destination", "O", "", "Stream a successful body to this file")
	fl.StringVar(&f.timeout, "timeout", getEnvString("HITFETCH_TIMEOUT", ""), "Total timeout, e.g. 500ms, 30s or plain milliseconds (env: HITFETCH_TIMEOUT)")
	fl.Int64Var(&f.maxSize, "max-size", -1, "Reject responses larger than this many bytes")
}

// loadTarget returns the request description for a file path or a URL.
func loadTarget(target string) (*spec.File, error) {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return &spec.File{URL: target}, nil
	}
	if _, err := os.Stat(target); err != nil {
		return nil, exitWith(ExitUsageError, fmt.Errorf("%s is neither a request file nor an http(s) URL", target))
	}
	f, err := spec.Load(target)
	if err != nil {
		return nil, exitWith(ExitParseError, err)
	}
	return f, nil
}

// apply folds command line flags and config defaults into f. Flags win over
// the file, the file wins over the config.
func (rf *requestFlags) apply(f *spec.File, cfg *config.Config) error {
	for _, h := range rf.headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return exitWith(ExitUsageError, fmt.Errorf("invalid header %q, want \"Name: value\"", h))
		}
		if f.Headers == nil {
			f.Headers = make(map[string]string)
		}
		f.Headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}

	for _, q := range rf.query {
		name, value, ok := strings.Cut(q, "=")
		if !ok {
			return exitWith(ExitUsageError, fmt.Errorf("invalid query parameter %q, want name=value", q))
		}
		if f.Query == nil {
			f.Query = make(map[string]string)
		}
		f.Query[name] = value
	}

	for _, field := range rf.form {
		name, value, ok := strings.Cut(field, "=")
		if !ok {
			return exitWith(ExitUsageError, fmt.Errorf("invalid form field %q, want name=value or name=@path", field))
		}
		part := spec.Part{Name: name}
		if path, isFile := strings.CutPrefix(value, "@"); isFile {
			part.File = path
		} else {
			part.Data = value
		}
		f.Form = append(f.Form, part)
	}

	if rf.data != "" {
		var body any
		if err := json.Unmarshal([]byte(rf.data), &body); err != nil {
			return exitWith(ExitUsageError, fmt.Errorf("--data is not valid JSON: %w", err))
		}
		f.Body = body
	}

	if rf.json {
		f.JSON = true
	}
	if rf.text {
		f.Text = true
	}
	if rf.destination != "" {
		f.Destination = rf.destination
	}

	switch {
	case rf.noCompress:
		f.Compression = false
	case rf.compressed || cfg.GetCompression():
		f.Compression = true
	}

	if rf.timeout != "" {
		ms, err := parseMillis(rf.timeout)
		if err != nil {
			return exitWith(ExitUsageError, err)
		}
		f.Timeout = ms
	} else if f.Timeout == nil && cfg.Timeout > 0 {
		f.Timeout = cfg.Timeout
	}

	if rf.maxSize >= 0 {
		f.MaxSize = rf.maxSize
	} else if f.MaxSize == nil && cfg.MaxSize > 0 {
		f.MaxSize = cfg.MaxSize
	}
	return nil
}

// parseMillis accepts a Go duration ("1.5s") or a plain millisecond count.
func parseMillis(s string) (int64, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q (use 500ms, 30s or a millisecond count)", s)
	}
	return d.Milliseconds(), nil
}

// newVariableResolver layers variables for {{name}} interpolation, later
// sources winning: .env files next to the request, --env-file, HITFETCH_VAR_*
// process variables, then the environment selected with --env.
func newVariableResolver(f *spec.File, cfg *config.Config, logger logrus.FieldLogger) (*env.Resolver, error) {
	dir := "."
	if f.Path != "" {
		dir = filepath.Dir(f.Path)
	}
	local, err := env.LoadDefaultDotEnv(dir)
	if err != nil {
		return nil, exitWith(ExitConfigError, err)
	}

	var explicit map[string]string
	if cfg.EnvFile != "" {
		if explicit, err = env.LoadAndExportDotEnv(cfg.EnvFile); err != nil {
			return nil, exitWith(ExitConfigError, err)
		}
	}

	r := env.NewResolver()
	r.SetWarnFunc(logger.Warnf)
	r.SetVariables(env.MergeVariables(
		env.StringVariables(local),
		env.StringVariables(explicit),
		env.LoadSystemEnv("HITFETCH_VAR_"),
		f.Variables(envFlag),
	))
	return r, nil
}

// buildRequest resolves target into a request config ready for Client.Do.
func buildRequest(target string, rf *requestFlags, cfg *config.Config, logger logrus.FieldLogger) (http.RequestConfig, *spec.File, error) {
	f, err := loadTarget(target)
	if err != nil {
		return http.RequestConfig{}, nil, err
	}
	if err := rf.apply(f, cfg); err != nil {
		return http.RequestConfig{}, nil, err
	}

	resolver, err := newVariableResolver(f, cfg, logger)
	if err != nil {
		return http.RequestConfig{}, nil, err
	}
	if missing := resolver.UnresolvedVariables(f.URL); len(missing) > 0 {
		return http.RequestConfig{}, nil, exitWith(ExitConfigError, fmt.Errorf("unresolved variables in url: %s", strings.Join(missing, ", ")))
	}

	return f.Build(resolver), f, nil
}

// notifyFlags configure the optional Slack webhook shared by fetch and bench.
type notifyFlags struct {
	slackWebhook string
	slackChannel string
	notifyOn     string
}

func addNotifyFlags(cmd *cobra.Command, f *notifyFlags) {
	fl := cmd.Flags()
	fl.StringVar(&f.slackWebhook, "slack-webhook", getEnvString("HITFETCH_SLACK_WEBHOOK", ""), "Post results to this Slack incoming webhook (env: HITFETCH_SLACK_WEBHOOK)")
	fl.StringVar(&f.slackChannel, "slack-channel", "", "Override the webhook's default channel")
	fl.StringVar(&f.notifyOn, "notify-on", getEnvString("HITFETCH_NOTIFY_ON", string(notify.NotifyFailure)), "When to notify: always, failure, success, recovery (env: HITFETCH_NOTIFY_ON)")
}

// manager returns nil when no webhook is configured.
func (f *notifyFlags) manager(client *http.Client, logger logrus.FieldLogger) (*notify.Manager, error) {
	if f.slackWebhook == "" {
		return nil, nil
	}
	on, err := notify.ParseNotifyOn(f.notifyOn)
	if err != nil {
		return nil, exitWith(ExitUsageError, err)
	}

	opts := []notify.SlackOption{notify.WithSlackClient(client)}
	if f.slackChannel != "" {
		opts = append(opts, notify.WithSlackChannel(f.slackChannel))
	}
	return notify.NewManager(on, logger, notify.NewSlackNotifier(f.slackWebhook, opts...)), nil
}
