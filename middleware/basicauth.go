package middleware

import (
	"net/http"
	"strconv"

	"golang.org/x/crypto/bcrypt"

	"go-slim.dev/relay"
)

// BasicAuthConfig configures the basic auth middleware.
type BasicAuthConfig struct {
	// Accounts maps user names to bcrypt password hashes.
	Accounts map[string]string `yaml:"accounts" toml:"accounts"`
	// Realm defaults to "Restricted". A reference argument overrides it:
	// "auth.basic:admin".
	Realm string `yaml:"realm" toml:"realm"`
	// Validator replaces the bcrypt lookup when set.
	Validator func(c relay.Context, user, password string) bool
}

// UserKey is the context key holding the authenticated user name.
const UserKey = "relay.user"

// BasicAuth checks HTTP basic credentials. A request without valid
// credentials is answered with 401 and never reaches the action.
type BasicAuth struct {
	config BasicAuthConfig
}

// NewBasicAuth creates the concrete basic auth middleware.
func NewBasicAuth(config BasicAuthConfig) *BasicAuth {
	if config.Realm == "" {
		config.Realm = "Restricted"
	}
	return &BasicAuth{config: config}
}

// HashPassword returns the bcrypt hash to put in BasicAuthConfig.Accounts.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(b), err
}

func (a *BasicAuth) validate(c relay.Context, user, password string) bool {
	if a.config.Validator != nil {
		return a.config.Validator(c, user, password)
	}
	hash, ok := a.config.Accounts[user]
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Handle implements relay.Middleware.
func (a *BasicAuth) Handle(c relay.Context, next relay.HandlerFunc, args ...string) error {
	realm := a.config.Realm
	if len(args) > 0 && args[0] != "" {
		realm = args[0]
	}
	user, password, ok := c.Request().BasicAuth()
	if ok && a.validate(c, user, password) {
		c.Set(UserKey, user)
		return next(c)
	}
	c.SetHeader(relay.HeaderWWWAuthenticate, "Basic realm="+strconv.Quote(realm))
	return c.String(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
}
