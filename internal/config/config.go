// Package config defines the necessary types to configure the application.
// An example config file config.yaml is provided in the repository.
package config

import (
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
)

type Config struct {
	commoncfg.BaseConfig `mapstructure:",squash" yaml:",inline"`

	HTTP HTTPServer `yaml:"http"`

	ValKey     ValKey     `yaml:"valkey"`
	AuthServer AuthServer `yaml:"authServer"`
	Client     Client     `yaml:"client"`
	AuthUI     AuthUI     `yaml:"authUI"`
}

type HTTPServer struct {
	Address         string        `yaml:"address" default:":8080"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" default:"5s"`
}

type ValKey struct {
	// Enabled selects the valkey-backed flow store; when false the
	// in-process TTL store is used instead.
	Enabled  bool                `yaml:"enabled"`
	Host     commoncfg.SourceRef `yaml:"host"`
	User     commoncfg.SourceRef `yaml:"user"`
	Password commoncfg.SourceRef `yaml:"password"`
	Prefix   string              `yaml:"prefix"`
}

// AuthServer describes the authorization server this deployment talks to.
// Endpoints may be pinned explicitly or discovered from the issuer's
// well-known configuration.
type AuthServer struct {
	IssuerURL string `yaml:"issuerURL"`

	// Discover fetches /.well-known/openid-configuration and caches it;
	// explicit endpoint overrides below win over discovered values.
	Discover bool `yaml:"discover"`
	// AllowHTTPScheme permits plain-http issuers, for local development only.
	AllowHTTPScheme   bool   `yaml:"allowHTTPScheme"`
	AuthorizeEndpoint string `yaml:"authorizeEndpoint"`
	TokenEndpoint     string `yaml:"tokenEndpoint"`

	LoginPath    string `yaml:"loginPath" default:"/auth/login"`
	IdentityPath string `yaml:"identityPath" default:"/users/me"`

	RequestTimeout time.Duration `yaml:"requestTimeout" default:"15s"`
}

// GateMode selects how the session gate verifies a usable session.
type GateMode string

const (
	// GateModeLocal decodes the id_token projection cookie locally.
	GateModeLocal GateMode = "local"
	// GateModeProbe forwards cookies to the authorization server's
	// identity endpoint.
	GateModeProbe GateMode = "probe"
)

// Client configures the relying-party application.
type Client struct {
	ClientID    string   `yaml:"clientID"`
	RedirectURI string   `yaml:"redirectURI"`
	Scopes      []string `yaml:"scopes"`

	PostLoginPath string `yaml:"postLoginPath" default:"/"`

	// FlowTTL bounds a pending authorization flow; a state record without a
	// callback within this window expires from the store.
	FlowTTL         time.Duration `yaml:"flowTTL" default:"10m"`
	SessionDuration time.Duration `yaml:"sessionDuration" default:"720h"`

	GateMode GateMode `yaml:"gateMode" default:"local"`

	ResourceServerURL string `yaml:"resourceServerURL"`

	SessionCookieTemplate CookieTemplate `yaml:"sessionCookie"`
	IDTokenCookieTemplate CookieTemplate `yaml:"idTokenCookie"`
}

// AuthUI configures the login/consent front-end hosted on the
// authorization server's origin.
type AuthUI struct {
	// LoginPath is where the consent page sends an unauthenticated user.
	LoginPath  string              `yaml:"loginPath" default:"/login"`
	CSRFSecret commoncfg.SourceRef `yaml:"csrfSecret"`

	CSRFCookieTemplate CookieTemplate `yaml:"csrfCookie"`
}

type CookieSameSite string

const (
	CookieSameSiteNone   CookieSameSite = "None"
	CookieSameSiteLax    CookieSameSite = "Lax"
	CookieSameSiteStrict CookieSameSite = "Strict"
)

// CookieTemplate is the configurable part of a cookie; ToCookie stamps a
// value into it.
type CookieTemplate struct {
	Name     string         `yaml:"name"`
	MaxAge   int            `yaml:"maxAge"`
	Path     string         `yaml:"path"`
	Domain   string         `yaml:"domain"`
	Secure   bool           `yaml:"secure"`
	HTTPOnly bool           `yaml:"httpOnly"`
	SameSite CookieSameSite `yaml:"sameSite"`
}
