package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mosaicnetworks/turnstile/src/config"
	"github.com/mosaicnetworks/turnstile/src/turnstile"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewRunCmd returns the command that starts a turnstile node
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runTurnstile,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runTurnstile(cmd *cobra.Command, args []string) error {
	logger := _config.Turnstile.Logger()

	engine := turnstile.NewTurnstile(&_config.Turnstile)

	if err := engine.Init(); err != nil {
		logger.Error("Cannot initialize engine:", err)
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signalCh)

	go func() {
		select {
		case sig := <-signalCh:
			logger.WithField("signal", sig.String()).Info("Stopping")
			if _config.Leave {
				if err := engine.Node.Leave(); err != nil {
					logger.WithError(err).Warn("Leaving")
				}
			}
			cancel()
		case <-ctx.Done():
		}
	}()

	return engine.Run(ctx)
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

// AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.Turnstile.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.Turnstile.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", _config.Turnstile.LogFile, "Also write JSON logs to this file")
	cmd.Flags().String("moniker", _config.Turnstile.Moniker, "Optional name")

	// Network
	cmd.Flags().StringP("listen", "l", _config.Turnstile.BindAddr, "Listen IP:Port for turnstile node")
	cmd.Flags().StringP("advertise", "a", _config.Turnstile.AdvertiseAddr, "Advertise IP:Port for turnstile node")
	cmd.Flags().DurationP("timeout", "t", _config.Turnstile.TCPTimeout, "TCP Timeout")
	cmd.Flags().DurationP("join-timeout", "j", _config.Turnstile.JoinTimeout, "Join Timeout")
	cmd.Flags().Int("max-pool", _config.Turnstile.MaxPool, "Connection pool size max")
	cmd.Flags().StringSlice("join", _config.Turnstile.JoinAddrs, "IP:Port of a node to join through (repeatable)")

	// Service
	cmd.Flags().StringP("service-listen", "s", _config.Turnstile.ServiceAddr, "Listen IP:Port for HTTP service")
	cmd.Flags().Bool("no-service", _config.Turnstile.NoService, "Disable HTTP service")

	// Group
	cmd.Flags().String("group", _config.Turnstile.Group, "Name of the group")
	cmd.Flags().String("policy", _config.Turnstile.Policy, "Admission policy: ca, vote or open")
	cmd.Flags().String("scheme", _config.Turnstile.Scheme, "Signature scheme: secp256k1 or schnorr")
	cmd.Flags().String("ca-key", _config.Turnstile.CAKey, "Hex public key of the CA (ca policy)")
	cmd.Flags().String("proof", _config.Turnstile.Proof, "Hex proof of our key signed by the CA (ca policy)")
	cmd.Flags().StringSlice("certificate", _config.Turnstile.Certificates, "JSON certificate file (vote policy, repeatable)")
	cmd.Flags().Float64("rate", _config.Turnstile.Rate, "Fraction of members that must vote for a candidate (vote policy)")
	cmd.Flags().Int("verify-cache", _config.Turnstile.VerifyCache, "Number of signature verifications to cache")
	cmd.Flags().Bool("leave", _config.Leave, "Leave the group when interrupted")

	// Store
	cmd.Flags().String("store", _config.Turnstile.Store, "Membership store: none, badger or sqlite")
	cmd.Flags().String("db", _config.Turnstile.DatabaseDir, "Database directory")

	// Node configuration
	cmd.Flags().Duration("heartbeat", _config.Turnstile.HeartbeatTimeout, "Time between heartbeats")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.Turnstile.SetDataDir(_config.Turnstile.DataDir)

	logFields := logrus.Fields{
		"turnstile.DataDir":          _config.Turnstile.DataDir,
		"turnstile.BindAddr":         _config.Turnstile.BindAddr,
		"turnstile.AdvertiseAddr":    _config.Turnstile.AdvertiseAddr,
		"turnstile.ServiceAddr":      _config.Turnstile.ServiceAddr,
		"turnstile.NoService":        _config.Turnstile.NoService,
		"turnstile.MaxPool":          _config.Turnstile.MaxPool,
		"turnstile.LogLevel":         _config.Turnstile.LogLevel,
		"turnstile.Moniker":          _config.Turnstile.Moniker,
		"turnstile.HeartbeatTimeout": _config.Turnstile.HeartbeatTimeout,
		"turnstile.TCPTimeout":       _config.Turnstile.TCPTimeout,
		"turnstile.JoinTimeout":      _config.Turnstile.JoinTimeout,
		"turnstile.JoinAddrs":        _config.Turnstile.JoinAddrs,
		"turnstile.Group":            _config.Turnstile.Group,
		"turnstile.Policy":           _config.Turnstile.Policy,
		"turnstile.Scheme":           _config.Turnstile.Scheme,
		"turnstile.Store":            _config.Turnstile.Store,
		"Leave":                      _config.Leave,
	}

	switch _config.Turnstile.Policy {
	case config.PolicyCA:
		logFields["turnstile.CAKey"] = _config.Turnstile.CAKey
	case config.PolicyVote:
		logFields["turnstile.Certificates"] = _config.Turnstile.Certificates
		logFields["turnstile.Rate"] = _config.Turnstile.Rate
	}

	if _config.Turnstile.Store != config.StoreNone {
		logFields["turnstile.DatabaseDir"] = _config.Turnstile.DatabaseDir
	}

	_config.Turnstile.Logger().WithFields(logFields).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/turnstile.toml (.json, .yaml also work)
	viper.SetConfigName("turnstile")               // name of config file (without extension)
	viper.AddConfigPath(_config.Turnstile.DataDir) // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Turnstile.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Turnstile.Logger().Debugf("No config file found in: %s", _config.Turnstile.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}
