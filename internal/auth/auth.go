package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/vortunix/noderegistry/internal/model"
)

var (
	ErrAuthSource         = errors.New("auth source unavailable")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Source yields the current list of dashboard users.
type Source interface {
	Users(ctx context.Context) ([]model.User, error)
}

// HTTPSource reads the user list as a JSON array from a fixed URL on every
// call. Nothing is cached.
type HTTPSource struct {
	client *resty.Client
	url    string
}

func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPSource{
		client: resty.New().SetTimeout(timeout),
		url:    url,
	}
}

func (h *HTTPSource) Users(ctx context.Context) ([]model.User, error) {
	if h.url == "" {
		return nil, errors.Wrap(ErrAuthSource, "no auth list url configured")
	}
	resp, err := h.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		Get(h.url)
	if err != nil {
		return nil, errors.Wrapf(ErrAuthSource, "fetch user list: %v", err)
	}
	if resp.IsError() {
		return nil, errors.Wrapf(ErrAuthSource, "fetch user list: status %d", resp.StatusCode())
	}
	// raw file hosts often answer text/plain, so decode the body ourselves.
	// Malformed entries decode as empty users rather than failing the list.
	var users []model.User
	if err := json.Unmarshal(resp.Body(), &users); err != nil {
		return nil, errors.Wrapf(ErrAuthSource, "parse user list: %v", err)
	}
	return users, nil
}

type Service struct {
	source Source
	log    *logrus.Entry
}

func NewService(source Source) *Service {
	return &Service{
		source: source,
		log:    logrus.WithField("component", "auth"),
	}
}

// Login returns the first user whose username and password both match.
func (s *Service) Login(ctx context.Context, username, password string) (model.User, error) {
	users, err := s.source.Users(ctx)
	if err != nil {
		s.log.WithError(err).Warn("auth source failed")
		return model.User{}, err
	}
	for _, u := range users {
		// entries without a string username never match
		if u.Username == "" {
			continue
		}
		if u.Username == username && PasswordMatches(u.Password, password) {
			return u, nil
		}
	}
	return model.User{}, ErrInvalidCredentials
}

// PasswordMatches compares a stored password with a candidate. Stored values
// carrying a bcrypt prefix are checked as bcrypt hashes, anything else is
// compared as plain text.
func PasswordMatches(stored, candidate string) bool {
	if isBcrypt(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(candidate)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(candidate)) == 1
}

func isBcrypt(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}
