package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"marketplace/internal/obs"
)

const (
	DefaultAccessLifetime  = 15 * time.Minute
	DefaultRefreshLifetime = 30 * 24 * time.Hour
	DefaultStoreTimeout    = 3 * time.Second
	DefaultReuseGrace      = 10 * time.Second
	defaultIssuer          = "marketplace"
)

type settings struct {
	now             func() time.Time
	log             zerolog.Logger
	storeTimeout    time.Duration
	accessLifetime  time.Duration
	refreshLifetime time.Duration
	issuer          string
	pepper          string
	verifyPassword  PasswordVerifier
	reuseDetection  bool
	reuseGrace      time.Duration
}

func defaultSettings() settings {
	return settings{
		now:             time.Now,
		log:             obs.Logger(),
		storeTimeout:    DefaultStoreTimeout,
		accessLifetime:  DefaultAccessLifetime,
		refreshLifetime: DefaultRefreshLifetime,
		issuer:          defaultIssuer,
		verifyPassword:  VerifyPassword,
		reuseDetection:  true,
		reuseGrace:      DefaultReuseGrace,
	}
}

// Option configures the codec, session manager, authenticator and evaluator.
// Components ignore options that do not concern them.
type Option func(*settings) error

func applyOptions(opts []Option) (settings, error) {
	s := defaultSettings()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&s); err != nil {
			return settings{}, err
		}
	}
	return s, nil
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *settings) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// WithLogger replaces the process-wide logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *settings) error {
		s.log = l
		return nil
	}
}

// WithStoreTimeout bounds every store call. Zero disables the bound.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *settings) error {
		if d < 0 {
			return errors.New("auth: store timeout must not be negative")
		}
		s.storeTimeout = d
		return nil
	}
}

// WithAccessLifetime configures access token lifetime.
func WithAccessLifetime(ttl time.Duration) Option {
	return func(s *settings) error {
		if ttl > 0 {
			s.accessLifetime = ttl
		}
		return nil
	}
}

// WithRefreshLifetime configures refresh token lifetime.
func WithRefreshLifetime(ttl time.Duration) Option {
	return func(s *settings) error {
		if ttl > 0 {
			s.refreshLifetime = ttl
		}
		return nil
	}
}

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) Option {
	return func(s *settings) error {
		s.issuer = strings.TrimSpace(issuer)
		return nil
	}
}

// WithRefreshPepper keys the refresh token hash with a server-side secret.
func WithRefreshPepper(pepper string) Option {
	return func(s *settings) error {
		s.pepper = strings.TrimSpace(pepper)
		return nil
	}
}

// WithPasswordVerifier replaces the password check against the credential store hash.
func WithPasswordVerifier(v PasswordVerifier) Option {
	return func(s *settings) error {
		if v == nil {
			return errors.New("auth: password verifier is required")
		}
		s.verifyPassword = v
		return nil
	}
}

// WithReuseDetection toggles revocation of the whole refresh lineage when an
// already rotated refresh token is presented again.
func WithReuseDetection(enabled bool) Option {
	return func(s *settings) error {
		s.reuseDetection = enabled
		return nil
	}
}

// WithReuseGrace sets how long after its rotation a refresh token may be presented
// again without revoking its family. Such replays are still denied.
func WithReuseGrace(d time.Duration) Option {
	return func(s *settings) error {
		if d < 0 {
			return errors.New("auth: reuse grace must not be negative")
		}
		s.reuseGrace = d
		return nil
	}
}

// storeCall runs fn under the configured deadline, records its latency and
// separates infrastructure failures from domain results.
func (s settings) storeCall(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if s.storeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.storeTimeout)
		defer cancel()
	}
	start := time.Now()
	err := fn(ctx)
	obs.ObserveStore(op, time.Since(start))
	return classifyStoreError(op, err)
}
