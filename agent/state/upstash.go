package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultStoreKeyPrefix = "farm-advisor:session:"
	lockKeySuffix         = ":lock"
	maxReplyBytes         = 2 << 20

	defaultLockPoll = 100 * time.Millisecond
	releaseTimeout  = 5 * time.Second
)

// releaseScript deletes the lock only while it still carries our token, so
// a holder whose lease expired cannot free someone else's lock.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) else return 0 end`

type UpstashRedisConfig struct {
	URL      string        `envconfig:"URL" split_words:"true"`
	Token    string        `envconfig:"TOKEN" split_words:"true"`
	TTL      time.Duration `envconfig:"TTL" split_words:"true" default:"0s"`
	Timeout  time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
	LockTTL  time.Duration `envconfig:"LOCK_TTL" split_words:"true" default:"2m"`
	LockWait time.Duration `envconfig:"LOCK_WAIT" split_words:"true" default:"30s"`
}

// Enabled reports whether a remote store is configured.
func (c UpstashRedisConfig) Enabled() bool {
	return strings.TrimSpace(c.URL) != ""
}

// upstashREST sends one Redis command per request to the Upstash REST API.
type upstashREST struct {
	endpoint string
	token    string
	client   *http.Client
}

type upstashReply struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

func (c *upstashREST) do(ctx context.Context, args ...any) (json.RawMessage, error) {
	if len(args) == 0 {
		return nil, errors.New("empty redis command")
	}
	name := fmt.Sprint(args[0])

	body, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", name, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("redis %s: %w", name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s reply: %w", name, err)
	}

	var reply upstashReply
	decodeErr := json.Unmarshal(raw, &reply)
	switch {
	case reply.Error != "":
		return nil, fmt.Errorf("redis %s: %s (status %d)", name, reply.Error, resp.StatusCode)
	case resp.StatusCode >= http.StatusMultipleChoices:
		return nil, fmt.Errorf("redis %s: status=%d body=%s", name, resp.StatusCode, string(raw))
	case decodeErr != nil:
		return nil, fmt.Errorf("decode %s reply: %w", name, decodeErr)
	}
	return bytes.TrimSpace(reply.Result), nil
}

func isNilReply(result json.RawMessage) bool {
	return len(result) == 0 || bytes.Equal(result, []byte("null"))
}

// StoreOption customizes UpstashRedisStore.
type StoreOption func(*UpstashRedisStore)

func WithKeyPrefix(prefix string) StoreOption {
	return func(s *UpstashRedisStore) {
		if trimmed := strings.TrimSpace(prefix); trimmed != "" {
			s.keyPrefix = trimmed
		}
	}
}

func WithTTL(ttl time.Duration) StoreOption {
	return func(s *UpstashRedisStore) {
		s.ttl = ttl
	}
}

func WithHTTPClient(client *http.Client) StoreOption {
	return func(s *UpstashRedisStore) {
		if client != nil {
			s.rest.client = client
		}
	}
}

// WithLockPoll sets how often a waiting turn retries the session lock.
func WithLockPoll(every time.Duration) StoreOption {
	return func(s *UpstashRedisStore) {
		if every > 0 {
			s.lockPoll = every
		}
	}
}

// UpstashRedisStore keeps ConversationState in Upstash Redis and doubles as
// the cross-process turn lock for the sessions it stores. A zero TTL keeps
// sessions indefinitely.
type UpstashRedisStore struct {
	rest      upstashREST
	keyPrefix string
	ttl       time.Duration

	lockTTL  time.Duration
	lockWait time.Duration
	lockPoll time.Duration
	newToken func() string
}

var _ SessionLocker = (*UpstashRedisStore)(nil)

func NewUpstashRedisStore(cfg UpstashRedisConfig, opts ...StoreOption) (*UpstashRedisStore, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if endpoint == "" {
		return nil, errors.New("upstash redis url is required")
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("invalid redis rest url: %w", err)
	}
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("upstash redis token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	s := &UpstashRedisStore{
		rest: upstashREST{
			endpoint: endpoint,
			token:    token,
			client:   &http.Client{Timeout: timeout},
		},
		keyPrefix: defaultStoreKeyPrefix,
		ttl:       cfg.TTL,
		lockTTL:   cfg.LockTTL,
		lockWait:  cfg.LockWait,
		lockPoll:  defaultLockPoll,
		newToken:  uuid.NewString,
	}
	if s.lockTTL <= 0 {
		s.lockTTL = 2 * time.Minute
	}
	if s.lockWait <= 0 {
		s.lockWait = 30 * time.Second
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.ttl < 0 {
		return nil, errors.New("ttl must be >= 0")
	}
	return s, nil
}

func (s *UpstashRedisStore) Load(ctx context.Context, sessionID string) (*ConversationState, error) {
	key, err := s.redisKey(sessionID)
	if err != nil {
		return nil, err
	}
	result, err := s.rest.do(ctx, "GET", key)
	if err != nil {
		return nil, err
	}
	if isNilReply(result) {
		return nil, ErrStateNotFound
	}

	// Upstash returns the stored value as a JSON string.
	var encoded string
	if err := json.Unmarshal(result, &encoded); err != nil {
		return nil, fmt.Errorf("decode session payload: %w", err)
	}
	var st ConversationState
	if err := json.Unmarshal([]byte(encoded), &st); err != nil {
		return nil, fmt.Errorf("unmarshal session state: %w", err)
	}
	if err := st.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session state loaded from store: %w", err)
	}
	return &st, nil
}

func (s *UpstashRedisStore) Save(ctx context.Context, st *ConversationState) error {
	if st == nil {
		return ErrNilSessionState
	}
	key, err := s.redisKey(st.SessionID)
	if err != nil {
		return err
	}
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now()
	}
	st.UpdatedAt = st.UpdatedAt.UTC()

	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}
	args := []any{"SET", key, string(payload)}
	if s.ttl > 0 {
		args = append(args, "EX", ttlSeconds(s.ttl))
	}
	_, err = s.rest.do(ctx, args...)
	return err
}

func (s *UpstashRedisStore) Delete(ctx context.Context, sessionID string) error {
	key, err := s.redisKey(sessionID)
	if err != nil {
		return err
	}
	_, err = s.rest.do(ctx, "DEL", key)
	return err
}

// LockSession takes the session's turn lock with SET NX PX, polling until
// the lock frees up or the configured wait runs out. The lease expires on
// its own so a crashed holder cannot wedge the session.
func (s *UpstashRedisStore) LockSession(ctx context.Context, sessionID string) (func(context.Context) error, error) {
	key, err := s.redisKey(sessionID)
	if err != nil {
		return nil, err
	}
	key += lockKeySuffix
	token := s.newToken()

	waitCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	defer cancel()

	for {
		result, err := s.rest.do(waitCtx, "SET", key, token, "NX", "PX", s.lockTTL.Milliseconds())
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil && waitCtx.Err() != nil:
			return nil, ErrSessionBusy
		case err != nil:
			return nil, fmt.Errorf("acquire session lock: %w", err)
		case !isNilReply(result):
			return s.releaser(key, token), nil
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, ErrSessionBusy
		case <-time.After(s.lockPoll):
		}
	}
}

func (s *UpstashRedisStore) releaser(key, token string) func(context.Context) error {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, releaseTimeout)
		defer cancel()
		if _, err := s.rest.do(ctx, "EVAL", releaseScript, 1, key, token); err != nil {
			return fmt.Errorf("release session lock: %w", err)
		}
		return nil
	}
}

func (s *UpstashRedisStore) redisKey(sessionID string) (string, error) {
	if strings.TrimSpace(sessionID) == "" {
		return "", ErrInvalidSession
	}
	return strings.TrimSpace(s.keyPrefix) + sessionID, nil
}

// ttlSeconds rounds up so a sub-second TTL never becomes "no expiry".
func ttlSeconds(ttl time.Duration) int64 {
	seconds := int64(ttl / time.Second)
	if ttl%time.Second != 0 {
		seconds++
	}
	if seconds <= 0 {
		return 1
	}
	return seconds
}
