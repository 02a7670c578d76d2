// Package relay issues time-limited credentials for the TURN relay that
// carries session audio. Credentials follow the coturn static-auth-secret
// scheme: the username embeds an absolute expiry and the password is an HMAC
// over the username, so nothing needs to be stored to validate them.
package relay

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pion/webrtc/v3"
)

// DefaultTTL is the credential lifetime when the caller does not override it.
const DefaultTTL = 24 * time.Hour

// SessionTTL is the shorter lifetime issued for interactive interview
// sessions.
const SessionTTL = time.Hour

// Credential is a time-limited identity/secret pair for the relay.
type Credential struct {
	Username   string    `json:"username"`
	Credential string    `json:"credential"`
	ValidUntil time.Time `json:"validUntil"`
}

// Issuer generates and validates relay credentials. It is stateless and safe
// for concurrent use.
type Issuer struct {
	secret     []byte
	host       string
	defaultTTL time.Duration
	now        func() time.Time
}

// Option is a functional option for Issuer
type Option func(*Issuer)

// WithHost sets the relay host used in ICE server URLs.
func WithHost(host string) Option {
	return func(i *Issuer) {
		i.host = host
	}
}

// WithDefaultTTL overrides the default credential lifetime.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(i *Issuer) {
		i.defaultTTL = ttl
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		i.now = now
	}
}

// New creates an issuer. The secret must match the relay server's configured
// static auth secret; an empty secret is refused so a misconfigured
// deployment fails at startup rather than issuing forgeable credentials.
func New(secret string, opts ...Option) (*Issuer, error) {
	if secret == "" {
		return nil, goerr.New("relay auth secret is required")
	}

	issuer := &Issuer{
		secret:     []byte(secret),
		host:       "localhost",
		defaultTTL: DefaultTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(issuer)
	}

	return issuer, nil
}

// Issue generates a credential for the given identity. A non-positive ttl
// selects the issuer's default. Deterministic given identity, ttl, the
// current time and the secret.
func (i *Issuer) Issue(identity string, ttl time.Duration) Credential {
	if ttl <= 0 {
		ttl = i.defaultTTL
	}

	expiry := i.now().Add(ttl).Truncate(time.Second)
	username := fmt.Sprintf("%d:%s", expiry.Unix(), identity)

	return Credential{
		Username:   username,
		Credential: i.sign(username),
		ValidUntil: expiry,
	}
}

// Validate reports whether the username/credential pair was issued with this
// issuer's secret and has not expired. It fails closed: an unparsable
// username is invalid.
func (i *Issuer) Validate(username, credential string) bool {
	prefix, _, ok := strings.Cut(username, ":")
	if !ok {
		return false
	}

	expiry, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return false
	}
	if expiry < i.now().Unix() {
		return false
	}

	expected := i.sign(username)
	return hmac.Equal([]byte(expected), []byte(credential))
}

func (i *Issuer) sign(username string) string {
	mac := hmac.New(sha1.New, i.secret)
	mac.Write([]byte(username))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ICEServers packages a credential as the ICE server list handed to WebRTC
// clients: a STUN entry plus TURN over UDP, TCP and TLS on the issuer's
// relay host.
func (i *Issuer) ICEServers(cred Credential) []webrtc.ICEServer {
	return []webrtc.ICEServer{
		{
			URLs: []string{fmt.Sprintf("stun:%s:3478", i.host)},
		},
		{
			URLs: []string{
				fmt.Sprintf("turn:%s:3478?transport=udp", i.host),
				fmt.Sprintf("turn:%s:3478?transport=tcp", i.host),
				fmt.Sprintf("turns:%s:5349?transport=tcp", i.host),
			},
			Username:       cred.Username,
			Credential:     cred.Credential,
			CredentialType: webrtc.ICECredentialTypePassword,
		},
	}
}
