// Package config defines the configuration for a turnstile node.
//
// Regardless of how a node is started, directly from Go code or as a standalone
// process from the command line, it uses the Config object defined in this
// package to store and forward configuration options. On top of these
// configuration options, turnstile relies on a data directory, defined by
// Config.DataDir, where it expects to find a few additional files:
//
//  priv_key // a plain text file containing the hex secret key (cf. turnstile keygen).
//  peers.json // (optional) a JSON file listing bootstrap peers to join through.
//  turnstile.toml // (optional) configuration file, .json and .yaml also work.
package config
