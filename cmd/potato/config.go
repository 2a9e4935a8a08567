package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/tailscale/hujson"

	couchpotato "github.com/andymorris/couch-potato"
	"github.com/andymorris/couch-potato/internal/platform"
	"github.com/andymorris/couch-potato/pkg/core"
	"github.com/andymorris/couch-potato/pkg/validate"
)

// Environment variables, read from the process or a .env file next to the
// project root. The process wins.
const (
	envAdapter  = "COUCHPOTATO_ADAPTER"
	envURI      = "COUCHPOTATO_URI"
	envUser     = "COUCHPOTATO_USER"
	envPassword = "COUCHPOTATO_PASSWORD"
)

var errConfigInvalid = errors.New("invalid config")

// settings is the merged CLI configuration. Precedence, lowest first:
// defaults, config file, environment, flags.
type settings struct {
	Adapter  string `json:"adapter"`
	URI      string `json:"uri"`
	Username string `json:"username"`
	Password string `json:"password"`
	Format   string `json:"format"`
	Rules    string `json:"rules"`
	AutoInit bool   `json:"auto_init"`
}

func defaultSettings() settings {
	return settings{Adapter: platform.AdapterFS, URI: "."}
}

// parseConfig decodes a JSONC config file.
func parseConfig(data []byte) (settings, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return settings{}, fmt.Errorf("invalid JSONC: %w", err)
	}
	var s settings
	dec := json.NewDecoder(bytes.NewReader(standardized))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return settings{}, fmt.Errorf("invalid JSON: %w", err)
	}
	return s, nil
}

func merge(base, overlay settings) settings {
	if overlay.Adapter != "" {
		base.Adapter = overlay.Adapter
	}
	if overlay.URI != "" {
		base.URI = overlay.URI
	}
	if overlay.Username != "" {
		base.Username = overlay.Username
	}
	if overlay.Password != "" {
		base.Password = overlay.Password
	}
	if overlay.Format != "" {
		base.Format = overlay.Format
	}
	if overlay.Rules != "" {
		base.Rules = overlay.Rules
	}
	base.AutoInit = base.AutoInit || overlay.AutoInit
	return base
}

// loadSettings resolves the configuration for workDir. explicitConfig must
// exist when set; otherwise the project config file is optional. lookupEnv
// is os.LookupEnv outside tests.
func loadSettings(workDir, explicitConfig string, lookupEnv func(string) (string, bool), flags settings) (settings, error) {
	s := defaultSettings()

	root, err := platform.FindRoot(workDir)
	if err != nil {
		root = workDir
	}

	cfgFile, mustExist := explicitConfig, true
	if cfgFile == "" {
		cfgFile, mustExist = filepath.Join(root, platform.ConfigFile), false
	}
	data, err := os.ReadFile(cfgFile)
	switch {
	case err == nil:
		fileCfg, err := parseConfig(data)
		if err != nil {
			return settings{}, fmt.Errorf("%w %s: %w", errConfigInvalid, cfgFile, err)
		}
		// Paths in the file are relative to the file.
		base := filepath.Dir(cfgFile)
		if fileCfg.URI != "" && (fileCfg.Adapter == "" || fileCfg.Adapter == platform.AdapterFS) && !filepath.IsAbs(fileCfg.URI) {
			fileCfg.URI = filepath.Join(base, fileCfg.URI)
		}
		if fileCfg.Rules != "" && !filepath.IsAbs(fileCfg.Rules) {
			fileCfg.Rules = filepath.Join(base, fileCfg.Rules)
		}
		s = merge(s, fileCfg)
	case os.IsNotExist(err) && !mustExist:
	default:
		return settings{}, fmt.Errorf("failed to read config %s: %w", cfgFile, err)
	}

	dotenv, err := godotenv.Read(filepath.Join(root, ".env"))
	if err != nil && !os.IsNotExist(err) {
		return settings{}, fmt.Errorf("failed to read .env: %w", err)
	}
	env := func(key string) string {
		if v, ok := lookupEnv(key); ok {
			return v
		}
		return dotenv[key]
	}
	s = merge(s, settings{
		Adapter:  env(envAdapter),
		URI:      env(envURI),
		Username: env(envUser),
		Password: env(envPassword),
	})

	return merge(s, flags), nil
}

// flagSettings collects the persistent flags.
func flagSettings() settings {
	return settings{Adapter: adapter, URI: uri, Rules: rulesPath}
}

// openDatabase resolves the settings and opens the database.
func openDatabase(ctx context.Context, extra settings) (*core.Database, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	s, err := loadSettings(wd, configPath, os.LookupEnv, merge(flagSettings(), extra))
	if err != nil {
		return nil, err
	}
	slog.Debug("opening database", "adapter", s.Adapter, "uri", s.URI)

	opts := []couchpotato.Option{
		couchpotato.WithAdapter(s.Adapter),
		couchpotato.WithLogger(slog.Default()),
		couchpotato.WithAutoInit(s.AutoInit),
		// The CLI operates on the real path, even when started with `go run`.
		couchpotato.WithDevSafety(false),
	}
	if s.Format != "" {
		opts = append(opts, couchpotato.WithFormat(s.Format))
	}
	if s.Username != "" {
		opts = append(opts, couchpotato.WithCredentials(s.Username, s.Password))
	}
	if s.Rules != "" {
		rules, err := validate.LoadFile(s.Rules)
		if err != nil {
			return nil, err
		}
		opts = append(opts, couchpotato.WithHooks(rulesHooks(rules)))
	}
	return couchpotato.New(ctx, s.URI, opts...)
}

// rulesHooks checks every saved document against rules.
func rulesHooks(rules *validate.Ruleset) *core.Hooks {
	return core.NewHooks().Before(core.StageValidationOnSave, func(ctx context.Context, doc core.Document) core.Outcome {
		errs, err := rules.Document(doc)
		if err != nil {
			doc.Errors().Add("base", err.Error())
			return core.Continue
		}
		doc.Errors().Merge(errs)
		return core.Continue
	})
}
