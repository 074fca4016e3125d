package core

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/keeper-security/secrets-manager-go/infrastructure/cache"
	"github.com/keeper-security/secrets-manager-go/infrastructure/crypto"
	"github.com/keeper-security/secrets-manager-go/infrastructure/errors"
	"github.com/keeper-security/secrets-manager-go/infrastructure/httputil"
	"github.com/keeper-security/secrets-manager-go/infrastructure/logging"
	"github.com/keeper-security/secrets-manager-go/infrastructure/metrics"
	"github.com/keeper-security/secrets-manager-go/infrastructure/ratelimit"
	"github.com/keeper-security/secrets-manager-go/infrastructure/storage"
)

const clientComponent = "client"

// ClientOptions configures a SecretsManager instance. Only Token (on first
// run) or a bound Config is required.
type ClientOptions struct {
	// Token is the one-time token, optionally prefixed with a region alias
	// ("US:...") or a literal hostname ("keepersecurity.eu:...").
	Token string
	// Hostname is required when the token carries no region prefix and the
	// configuration has none stored yet.
	Hostname string
	// Config is the persistent key-value store. Nil selects KSM_CONFIG from
	// the environment when set, otherwise the default file store.
	Config storage.KeyValueStorage
	// InsecureSkipVerify disables TLS certificate verification.
	// KSM_SKIP_VERIFY=TRUE does the same.
	InsecureSkipVerify bool
	// LogLevel overrides the LOG_LEVEL environment variable.
	LogLevel string
	// Cache enables the offline replay cache for get_secret responses.
	Cache cache.Cache
	// HTTPClient overrides the default HTTP client. Its transport wins over
	// InsecureSkipVerify.
	HTTPClient *http.Client
	// Timeout bounds each server call when HTTPClient is nil.
	Timeout time.Duration
	// Metrics enables Prometheus collection when non-nil.
	Metrics *metrics.Metrics
	// RateLimit throttles outbound calls when non-nil.
	RateLimit *ratelimit.Limiter
}

// SecretsManager is the Keeper Secrets Manager client. Construct it with
// NewSecretsManager; the constructor leaves the configuration either bound
// or ready to bind on the first get_secrets call.
type SecretsManager struct {
	token          string
	hostname       string
	verifySSLCerts bool
	config         storage.KeyValueStorage
	httpClient     *http.Client
	cache          cache.Cache
	log            *logging.Logger
	metrics        *metrics.Metrics
	limiter        *ratelimit.Limiter
	serverKeys     map[string]string
}

const defaultTimeout = 60 * time.Second

// NewSecretsManager creates a client and runs the binding state machine over
// the supplied configuration. See init for the three startup states.
func NewSecretsManager(options *ClientOptions) (*SecretsManager, error) {
	if options == nil {
		options = &ClientOptions{}
	}

	logLevel := options.LogLevel
	if logLevel == "" {
		logLevel = strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	}
	if logLevel == "" {
		logLevel = "info"
	}

	sm := &SecretsManager{
		log:        logging.New(clientComponent, logLevel, os.Getenv("LOG_FORMAT")),
		cache:      options.Cache,
		metrics:    options.Metrics,
		limiter:    options.RateLimit,
		serverKeys: keeperPublicKeys,
	}

	cfg := options.Config
	if cfg == nil {
		if env := strings.TrimSpace(os.Getenv(EnvKSMConfig)); env != "" {
			mem, err := storage.NewMemoryKeyValueStorage(env)
			if err != nil {
				return nil, errors.Wrap(errors.ErrCodeConfig, clientComponent, "parse KSM_CONFIG", err)
			}
			cfg = mem
		} else {
			file, err := storage.NewFileKeyValueStorage()
			if err != nil {
				return nil, err
			}
			cfg = file
		}
	}
	sm.config = cfg

	if err := sm.resolveToken(options); err != nil {
		return nil, err
	}

	sm.verifySSLCerts = !options.InsecureSkipVerify
	if env := strings.TrimSpace(os.Getenv(EnvKSMSkipVerify)); env != "" {
		skip, err := parseBool(env)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeConfig, clientComponent, "parse KSM_SKIP_VERIFY", err)
		}
		sm.verifySSLCerts = !skip
	}

	if options.HTTPClient != nil {
		sm.httpClient = options.HTTPClient
	} else {
		timeout := options.Timeout
		if timeout == 0 {
			timeout = defaultTimeout
		}
		sm.httpClient = httputil.CopyClientWithTimeout(&http.Client{
			Transport: httputil.NewTransport(!sm.verifySSLCerts),
		}, timeout)
	}
	if !sm.verifySSLCerts {
		sm.log.Warn("running without SSL certificate verification; set KSM_SKIP_VERIFY=FALSE or InsecureSkipVerify=false to enable it")
	}

	if sm.token != "" {
		if err := cfg.Set(storage.KeyClientKey, sm.token); err != nil {
			return nil, err
		}
	}
	if sm.hostname != "" {
		if err := cfg.Set(storage.KeyHostname, sm.hostname); err != nil {
			return nil, err
		}
	}

	// Repair an absent or unknown server public key id before any call.
	keyID, err := cfg.Get(storage.KeyServerPublicKeyID)
	if err != nil {
		return nil, err
	}
	if _, known := sm.serverKeys[keyID]; keyID == "" || !known {
		if keyID != "" {
			sm.log.Debugf("public key id %q is not known, resetting to default %s", keyID, defaultServerPublicKeyID)
		}
		if err := cfg.Set(storage.KeyServerPublicKeyID, defaultServerPublicKeyID); err != nil {
			return nil, err
		}
	}

	if err := sm.init(); err != nil {
		return nil, err
	}
	return sm, nil
}

// resolveToken captures the token and hostname from options, environment and
// region alias table.
func (c *SecretsManager) resolveToken(options *ClientOptions) error {
	token := strings.TrimSpace(options.Token)
	if token == "" {
		token = strings.TrimSpace(os.Getenv(EnvKSMToken))
	}
	if token == "" {
		c.hostname = strings.TrimSpace(options.Hostname)
		return nil
	}

	if before, after, found := strings.Cut(token, ":"); found {
		alias := strings.ToUpper(before)
		if host, ok := keeperServers[alias]; ok {
			c.hostname = host
		} else {
			// Not an alias: the prefix is a literal hostname.
			c.hostname = before
		}
		c.token = after
	} else {
		c.hostname = strings.TrimSpace(options.Hostname)
		if c.hostname == "" {
			if stored, err := c.config.Get(storage.KeyHostname); err == nil && stored != "" {
				c.hostname = stored
			}
		}
		if c.hostname == "" {
			return errors.New(errors.ErrCodeConfig, clientComponent, "the hostname must be present in the token or provided as a parameter")
		}
		c.token = token
	}
	if c.token == "" {
		return errors.New(errors.ErrCodeConfig, clientComponent, "token has an empty secret part")
	}
	return nil
}

// init is the binding state machine: it decides whether the configuration is
// fresh, carries an unredeemed token, or is already bound.
func (c *SecretsManager) init() error {
	clientID, err := c.config.Get(storage.KeyClientID)
	if err != nil {
		return err
	}

	if c.token != "" && clientID != "" {
		tokenClientID, err := clientIDFromSecret(c.token)
		if err != nil {
			return err
		}
		if tokenClientID != clientID {
			return errors.Newf(errors.ErrCodeBindingConflict, clientComponent,
				"the provided token does not match the client id; storage is initiated with a different token (client id %s)", clientID)
		}
		appKey, err := c.config.Get(storage.KeyAppKey)
		if err != nil {
			return err
		}
		if appKey != "" {
			c.log.Warn("the storage is already initiated with the same token")
		} else {
			c.log.Warn("the storage is already initiated but not bound")
		}
		return c.ensurePrivateKey()
	}

	if clientID != "" {
		c.log.Debug("already bound to the token")
		return c.ensurePrivateKey()
	}

	// Fresh storage: a token is required, from the constructor, environment
	// or a clientKey left by a previous partial run.
	secret := c.token
	if secret == "" {
		secret, err = c.config.Get(storage.KeyClientKey)
		if err != nil {
			return err
		}
	}
	if secret == "" {
		return errors.New(errors.ErrCodeConfig, clientComponent, "cannot locate the one-time token: storage is empty and no token was provided")
	}

	newClientID, err := clientIDFromSecret(secret)
	if err != nil {
		return err
	}
	if err := c.config.Set(storage.KeyClientID, newClientID); err != nil {
		return err
	}
	if err := c.config.Set(storage.KeyClientKey, secret); err != nil {
		return err
	}
	return c.ensurePrivateKey()
}

// ensurePrivateKey generates the client key pair on first use.
func (c *SecretsManager) ensurePrivateKey() error {
	existing, err := c.config.Get(storage.KeyPrivateKey)
	if err != nil {
		return err
	}
	if existing != "" {
		return nil
	}
	der, err := crypto.GeneratePrivateKeyDER()
	if err != nil {
		return err
	}
	return c.config.Set(storage.KeyPrivateKey, crypto.BytesToBase64(der))
}

// clientIDFromSecret derives the server-side client identifier from a token
// secret: base64 of HMAC-SHA-512(secret, tag).
func clientIDFromSecret(secret string) (string, error) {
	secretBytes, err := crypto.URLSafeStrToBytes(secret)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeDecode, clientComponent, "decode token secret", err)
	}
	return crypto.BytesToBase64(crypto.HMACSHA512(secretBytes, []byte(clientIDHashTag))), nil
}

// Hostname returns the server host the client talks to.
func (c *SecretsManager) Hostname() string {
	host, _ := c.config.Get(storage.KeyHostname)
	if host == "" {
		host = c.hostname
	}
	return host
}

// Config exposes the backing store; read-mostly, used by integrations that
// persist the bound configuration elsewhere.
func (c *SecretsManager) Config() storage.KeyValueStorage {
	return c.config
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no":
		return false, nil
	}
	return false, errors.Newf(errors.ErrCodeConfig, clientComponent, "invalid boolean %q", s)
}
