package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/mosaicnetworks/turnstile/src/common"
	"github.com/mosaicnetworks/turnstile/src/identity"
	"github.com/mosaicnetworks/turnstile/src/peers"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing the node's
	// secret key
	DefaultKeyfile = "priv_key"

	// DefaultBadgerFile is the default name of the folder containing the Badger
	// database
	DefaultBadgerFile = "badger_db"

	// DefaultSQLiteFile is the default name of the SQLite database file
	DefaultSQLiteFile = "membership.db"
)

// Admission policies.
const (
	PolicyCA   = "ca"
	PolicyVote = "vote"
	PolicyOpen = "open"
)

// Membership stores.
const (
	StoreNone   = "none"
	StoreBadger = "badger"
	StoreSQLite = "sqlite"
)

// Default configuration values.
const (
	DefaultLogLevel         = "debug"
	DefaultBindAddr         = "127.0.0.1:1337"
	DefaultServiceAddr      = "127.0.0.1:8000"
	DefaultHeartbeatTimeout = 1000 * time.Millisecond
	DefaultTCPTimeout       = 1000 * time.Millisecond
	DefaultJoinTimeout      = 10000 * time.Millisecond
	DefaultMaxPool          = 2
	DefaultGroup            = "turnstile"
	DefaultPolicy           = PolicyCA
	DefaultScheme           = identity.Secp256k1Name
	DefaultRate             = 0.5
	DefaultStore            = StoreNone
	DefaultVerifyCache      = identity.DefaultVerifyCacheSize
)

// Config contains all the configuration properties of a turnstile node.
type Config struct {
	// DataDir is the top-level directory containing turnstile configuration
	// and data
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogFile, when set, receives a copy of the log output.
	LogFile string `mapstructure:"log-file"`

	// Moniker defines the friendly name of this node
	Moniker string `mapstructure:"moniker"`

	// BindAddr is the local address:port where this node receives admission
	// RPCs from other nodes. Use AdvertiseAddr when the bound address is not
	// routable.
	BindAddr string `mapstructure:"listen"`

	// AdvertiseAddr is used to change the address that we advertise to other
	// nodes.
	AdvertiseAddr string `mapstructure:"advertise"`

	// TCPTimeout is the timeout of RPC connections.
	TCPTimeout time.Duration `mapstructure:"timeout"`

	// JoinTimeout is the timeout of Join Requests
	JoinTimeout time.Duration `mapstructure:"join-timeout"`

	// MaxPool controls how many connections are pooled per target.
	MaxPool int `mapstructure:"max-pool"`

	// ServiceAddr is the address:port of the optional HTTP service.
	ServiceAddr string `mapstructure:"service-listen"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// Group is the name of the group. The GroupID is derived from it.
	Group string `mapstructure:"group"`

	// Policy is the admission policy: ca, vote or open.
	Policy string `mapstructure:"policy"`

	// Scheme is the signature scheme: secp256k1 or schnorr.
	Scheme string `mapstructure:"scheme"`

	// CAKey is the hex public key of the certificate authority (ca policy).
	CAKey string `mapstructure:"ca-key"`

	// Proof is the hex signature of our public key by the CA (ca policy).
	Proof string `mapstructure:"proof"`

	// Certificates are paths to JSON certificates vouching for our public key
	// (vote policy). They are presented in turn when joining.
	Certificates []string `mapstructure:"certificate"`

	// Rate is the fraction of members that must vote for a candidate (vote
	// policy).
	Rate float64 `mapstructure:"rate"`

	// Store selects where the membership map is checkpointed: none, badger
	// or sqlite.
	Store string `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// VerifyCache is the number of signature verifications to remember. Zero
	// disables the cache.
	VerifyCache int `mapstructure:"verify-cache"`

	// HeartbeatTimeout is the period of the liveness heartbeat sent to the
	// other members.
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat"`

	// JoinAddrs are the addresses of the nodes to join through on startup.
	// They are complemented by the peers.json file in DataDir.
	JoinAddrs []string `mapstructure:"join"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:          DefaultDataDir(),
		LogLevel:         DefaultLogLevel,
		BindAddr:         DefaultBindAddr,
		ServiceAddr:      DefaultServiceAddr,
		HeartbeatTimeout: DefaultHeartbeatTimeout,
		TCPTimeout:       DefaultTCPTimeout,
		JoinTimeout:      DefaultJoinTimeout,
		MaxPool:          DefaultMaxPool,
		Group:            DefaultGroup,
		Policy:           DefaultPolicy,
		Scheme:           DefaultScheme,
		Rate:             DefaultRate,
		Store:            DefaultStore,
		DatabaseDir:      DefaultDatabaseDir(),
		VerifyCache:      DefaultVerifyCache,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.DataDir = t.TempDir()
	config.DatabaseDir = filepath.Join(config.DataDir, DefaultBadgerFile)
	config.HeartbeatTimeout = 50 * time.Millisecond
	config.logger = common.NewTestLogger(t, level)
	return config
}

// SetDataDir sets the top-level turnstile directory, and updates the database
// directory if it is currently set to the default value. If the database
// directory is not currently the default, it means the user has explicitely set
// it to something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// Keyfile returns the full path of the file containing the secret key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// SQLiteFile returns the full path of the SQLite membership database.
func (c *Config) SQLiteFile() string {
	return filepath.Join(c.DatabaseDir, DefaultSQLiteFile)
}

// PeerSet returns the optional list of bootstrap peers in DataDir.
func (c *Config) PeerSet() *peers.JSONPeerSet {
	return peers.NewJSONPeerSet(c.DataDir)
}

// GroupID derives the identifier of the configured group.
func (c *Config) GroupID() peers.GroupID {
	return peers.GroupIDFromName(c.Group)
}

// SignatureScheme returns the configured scheme, wrapped in a verification
// cache unless VerifyCache is zero.
func (c *Config) SignatureScheme() (identity.Scheme, error) {
	scheme, err := identity.FromName(c.Scheme)
	if err != nil {
		return nil, err
	}
	if c.VerifyCache <= 0 {
		return scheme, nil
	}
	return identity.NewCachedScheme(scheme, c.VerifyCache)
}

// Logger returns a formatted logrus Entry, with prefix set to "turnstile".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)
		if c.LogFile != "" {
			c.logger.Hooks.Add(lfshook.NewHook(
				c.LogFile,
				&logrus.JSONFormatter{},
			))
		}
	}
	return c.logger.WithField("prefix", "turnstile")
}

// DefaultDatabaseDir returns the default path for the database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir return the default directory name for top-level turnstile
// config based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Turnstile")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Turnstile")
		} else {
			return filepath.Join(home, ".turnstile")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
