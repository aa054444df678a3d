package config

import (
	"path/filepath"
	"testing"

	"github.com/mosaicnetworks/turnstile/src/identity"
	"github.com/mosaicnetworks/turnstile/src/peers"
	"github.com/sirupsen/logrus"
)

func TestSetDataDir(t *testing.T) {
	conf := NewDefaultConfig()
	conf.SetDataDir("/tmp/turnstile")

	if conf.DatabaseDir != filepath.Join("/tmp/turnstile", DefaultBadgerFile) {
		t.Fatalf("database dir should follow datadir, got %s", conf.DatabaseDir)
	}
	if conf.Keyfile() != filepath.Join("/tmp/turnstile", DefaultKeyfile) {
		t.Fatalf("bad keyfile %s", conf.Keyfile())
	}

	conf.DatabaseDir = "/var/db"
	conf.SetDataDir("/tmp/other")
	if conf.DatabaseDir != "/var/db" {
		t.Fatalf("explicit database dir should not be overridden, got %s", conf.DatabaseDir)
	}
	if conf.SQLiteFile() != filepath.Join("/var/db", DefaultSQLiteFile) {
		t.Fatalf("bad sqlite file %s", conf.SQLiteFile())
	}
}

func TestSignatureScheme(t *testing.T) {
	conf := NewTestConfig(t, logrus.DebugLevel)

	scheme, err := conf.SignatureScheme()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := scheme.(*identity.CachedScheme); !ok {
		t.Fatalf("scheme should be cached, got %T", scheme)
	}

	conf.Scheme = identity.SchnorrName
	conf.VerifyCache = 0
	scheme, err = conf.SignatureScheme()
	if err != nil {
		t.Fatal(err)
	}
	if scheme.Name() != identity.SchnorrName {
		t.Fatalf("expected schnorr, got %s", scheme.Name())
	}
	if _, ok := scheme.(*identity.CachedScheme); ok {
		t.Fatal("scheme should not be cached")
	}

	conf.Scheme = "rsa"
	if _, err := conf.SignatureScheme(); err == nil {
		t.Fatal("unknown scheme should fail")
	}
}

func TestGroupID(t *testing.T) {
	conf := NewDefaultConfig()
	conf.Group = "alpha"
	if conf.GroupID() != peers.GroupIDFromName("alpha") {
		t.Fatal("group id should derive from the group name")
	}
}

func TestLogLevel(t *testing.T) {
	levels := map[string]logrus.Level{
		"debug":   logrus.DebugLevel,
		"info":    logrus.InfoLevel,
		"warn":    logrus.WarnLevel,
		"error":   logrus.ErrorLevel,
		"unknown": logrus.DebugLevel,
	}
	for s, l := range levels {
		if LogLevel(s) != l {
			t.Fatalf("LogLevel(%s) should be %v", s, l)
		}
	}
}
