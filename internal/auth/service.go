package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-uploader/internal/auth/jwt"
)

// ErrTooManyAttempts is returned while a client is locked out.
var ErrTooManyAttempts = errors.New("too many failed access code attempts")

// Session is what a successful login returns.
type Session struct {
	ID          string `json:"session_id"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Limiter tracks failed logins per client.
type Limiter interface {
	Blocked(ctx context.Context, key string) (bool, error)
	Fail(ctx context.Context, key string) error
	Reset(ctx context.Context, key string) error
}

// Service gates the API behind a shared access code.
type Service struct {
	codeHash string
	tokenMgr *jwt.Manager
	limiter  Limiter
	logger   zerolog.Logger
}

// ServiceOptions configures the auth service.
type ServiceOptions struct {
	AccessCodeHash string
	TokenConfig    jwt.TokenConfig
	Limiter        Limiter
}

func NewService(opts ServiceOptions, logger zerolog.Logger) *Service {
	return &Service{
		codeHash: opts.AccessCodeHash,
		tokenMgr: jwt.NewManager(opts.TokenConfig),
		limiter:  opts.Limiter,
		logger:   logger.With().Str("component", "auth").Logger(),
	}
}

// Login exchanges the access code for a session token. clientKey groups
// failed attempts, usually the remote address.
func (s *Service) Login(ctx context.Context, code, clientKey string) (*Session, error) {
	if s.limiter != nil {
		blocked, err := s.limiter.Blocked(ctx, clientKey)
		if err != nil {
			s.logger.Warn().Err(err).Msg("login limiter unavailable")
		} else if blocked {
			return nil, ErrTooManyAttempts
		}
	}

	if err := VerifyAccessCode(s.codeHash, code); err != nil {
		if s.limiter != nil {
			if ferr := s.limiter.Fail(ctx, clientKey); ferr != nil {
				s.logger.Warn().Err(ferr).Msg("record failed login")
			}
		}
		s.logger.Info().Str("client", clientKey).Msg("access code rejected")
		return nil, err
	}
	if s.limiter != nil {
		_ = s.limiter.Reset(ctx, clientKey)
	}

	sessionID := uuid.NewString()
	token, err := s.tokenMgr.Issue(sessionID)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &Session{
		ID:          sessionID,
		AccessToken: token,
		ExpiresIn:   int64(s.tokenMgr.TTL().Seconds()),
	}, nil
}

// ValidateToken parses a session token.
func (s *Service) ValidateToken(tokenString string) (*jwt.Claims, error) {
	return s.tokenMgr.Validate(tokenString)
}

// RedisLimiter locks a client out after MaxFailures failures within Window.
type RedisLimiter struct {
	client      *redis.Client
	MaxFailures int64
	Window      time.Duration
}

var _ Limiter = (*RedisLimiter)(nil)

func NewRedisLimiter(client *redis.Client, maxFailures int64, window time.Duration) *RedisLimiter {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &RedisLimiter{client: client, MaxFailures: maxFailures, Window: window}
}

func (l *RedisLimiter) key(client string) string {
	return "auth:failures:" + client
}

func (l *RedisLimiter) Blocked(ctx context.Context, client string) (bool, error) {
	n, err := l.client.Get(ctx, l.key(client)).Int64()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return n >= l.MaxFailures, nil
}

func (l *RedisLimiter) Fail(ctx context.Context, client string) error {
	pipe := l.client.TxPipeline()
	pipe.Incr(ctx, l.key(client))
	pipe.Expire(ctx, l.key(client), l.Window)
	_, err := pipe.Exec(ctx)
	return err
}

func (l *RedisLimiter) Reset(ctx context.Context, client string) error {
	return l.client.Del(ctx, l.key(client)).Err()
}
