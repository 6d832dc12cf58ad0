package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "COMMLINK_"

// TransportOptions configures the realtime connection.
type TransportOptions struct {
	ReconnectPolicy   string        `yaml:"reconnect_policy"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	MaxReconnectDelay time.Duration `yaml:"max_reconnect_delay"`
	PingInterval      time.Duration `yaml:"ping_interval"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
}

// TypingOptions configures outbound and inbound typing state.
type TypingOptions struct {
	StartInterval time.Duration `yaml:"start_interval"`
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
	StaleAfter    time.Duration `yaml:"stale_after"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// MentionOptions configures autocomplete.
type MentionOptions struct {
	Debounce time.Duration `yaml:"debounce"`
	Limit    int           `yaml:"limit"`
}

// Options is the complete client configuration.
type Options struct {
	APIURL         string           `yaml:"api_url"`
	RealtimeURL    string           `yaml:"realtime_url"`
	Token          string           `yaml:"token"`
	RequestTimeout time.Duration    `yaml:"request_timeout"`
	ICEServers     []string         `yaml:"ice_servers"`
	PageSize       int              `yaml:"page_size"`
	PollInterval   time.Duration    `yaml:"poll_interval"`
	RevealTTL      time.Duration    `yaml:"reveal_ttl"`
	Transport      TransportOptions `yaml:"transport"`
	Typing         TypingOptions    `yaml:"typing"`
	Mention        MentionOptions   `yaml:"mention"`
}

// Default returns the standard timings with no endpoints set.
func Default() Options {
	return Options{
		RequestTimeout: 15 * time.Second,
		ICEServers:     []string{"stun:stun.l.google.com:19302"},
		PageSize:       50,
		PollInterval:   10 * time.Second,
		RevealTTL:      15 * time.Second,
		Transport: TransportOptions{
			ReconnectPolicy:   "constant",
			ReconnectDelay:    5 * time.Second,
			MaxReconnectDelay: time.Minute,
			PingInterval:      30 * time.Second,
			WriteTimeout:      10 * time.Second,
		},
		Typing: TypingOptions{
			StartInterval: 1200 * time.Millisecond,
			IdleTimeout:   2200 * time.Millisecond,
			StaleAfter:    6 * time.Second,
			SweepInterval: 1500 * time.Millisecond,
		},
		Mention: MentionOptions{
			Debounce: 120 * time.Millisecond,
			Limit:    6,
		},
	}
}

// LoadFile overlays a YAML file onto o. Keys absent from the file keep
// their current values.
func (o *Options) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, o); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	if info, err := os.Stat(path); err == nil && info.Mode().Perm()&0o004 != 0 && o.Token != "" {
		logrus.WithFields(logrus.Fields{
			"function": "LoadFile",
			"path":     path,
		}).Warn("Config file holding a token is world-readable")
	}
	return nil
}

// ApplyEnv loads dotenv (if it exists) into the process environment, then
// applies COMMLINK_* overrides. Variables already set in the environment
// take precedence over the .env file.
func (o *Options) ApplyEnv(dotenv string) error {
	if dotenv != "" {
		if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", dotenv, err)
		}
	}

	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			*dst = v
		}
	}
	var errs []error
	dur := func(name string, dst *time.Duration) {
		v, ok := os.LookupEnv(EnvPrefix + name)
		if !ok {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
			return
		}
		*dst = d
	}

	str("API_URL", &o.APIURL)
	str("REALTIME_URL", &o.RealtimeURL)
	str("TOKEN", &o.Token)
	str("RECONNECT_POLICY", &o.Transport.ReconnectPolicy)
	dur("REQUEST_TIMEOUT", &o.RequestTimeout)
	dur("RECONNECT_DELAY", &o.Transport.ReconnectDelay)
	dur("MAX_RECONNECT_DELAY", &o.Transport.MaxReconnectDelay)
	dur("POLL_INTERVAL", &o.PollInterval)
	dur("REVEAL_TTL", &o.RevealTTL)
	if v, ok := os.LookupEnv(EnvPrefix + "ICE_SERVERS"); ok {
		o.ICEServers = splitList(v)
	}
	if v, ok := os.LookupEnv(EnvPrefix + "PAGE_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sPAGE_SIZE: %w", EnvPrefix, err))
		} else {
			o.PageSize = n
		}
	}
	return errors.Join(errs...)
}

// Validate checks that endpoints are set and every timing is positive.
func (o *Options) Validate() error {
	if o.APIURL == "" {
		return fmt.Errorf("%w: api_url", ErrMissingEndpoint)
	}
	if o.RealtimeURL == "" {
		return fmt.Errorf("%w: realtime_url", ErrMissingEndpoint)
	}
	durations := []struct {
		name string
		v    time.Duration
	}{
		{"request_timeout", o.RequestTimeout},
		{"poll_interval", o.PollInterval},
		{"reveal_ttl", o.RevealTTL},
		{"transport.reconnect_delay", o.Transport.ReconnectDelay},
		{"transport.ping_interval", o.Transport.PingInterval},
		{"transport.write_timeout", o.Transport.WriteTimeout},
		{"typing.start_interval", o.Typing.StartInterval},
		{"typing.idle_timeout", o.Typing.IdleTimeout},
		{"typing.stale_after", o.Typing.StaleAfter},
		{"typing.sweep_interval", o.Typing.SweepInterval},
		{"mention.debounce", o.Mention.Debounce},
	}
	for _, d := range durations {
		if d.v <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %s", ErrInvalidDuration, d.name, d.v)
		}
	}
	if o.PageSize <= 0 {
		return fmt.Errorf("%w: page_size", ErrInvalidLimit)
	}
	if o.Mention.Limit <= 0 {
		return fmt.Errorf("%w: mention.limit", ErrInvalidLimit)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
