package config

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix is stripped from environment variables; "__" separates levels,
	// so SIMPLEFILTER_LISTS__FILTER_LIST_0 sets lists.filter_list_0.
	EnvPrefix = "SIMPLEFILTER_"

	// PathEnv names the optional YAML config file.
	PathEnv = "SIMPLEFILTER_CONFIG"

	// ListKeyPrefix prefixes the key of every profile's list reference.
	ListKeyPrefix = "filter_list_"
)

// AppConfig holds configuration values from defaults, an optional YAML file
// and the environment, in that order of precedence.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	Log LoggingConfig `koanf:"log" validate:"required"`

	// Listen is the address of the HTTP interface. Empty disables it.
	Listen string `koanf:"listen" validate:"omitempty,hostname_port"`

	Profiles ProfilesConfig `koanf:"profiles" validate:"required"`

	// Lists maps "filter_list_<n>" to the raw list reference of profile n.
	Lists map[string]string `koanf:"lists" validate:"dive,keys,list_key,endkeys"`

	Fetch FetchConfig `koanf:"fetch" validate:"required"`
	Rules RulesConfig `koanf:"rules" validate:"required"`
	Cache CacheConfig `koanf:"cache"`
	State StateConfig `koanf:"state" validate:"required"`
}

type LoggingConfig struct {
	// Level controls log verbosity: "debug", "info", "warn", or "error".
	Level string `koanf:"level" validate:"required,oneof=debug info warn error"`
	// File enables rotated file output in addition to stderr.
	File      string `koanf:"file"`
	MaxSizeMB int    `koanf:"max_size_mb" validate:"gte=0"`
}

type ProfilesConfig struct {
	Slots int `koanf:"slots" validate:"required,gte=1,lte=32"`
	// Dir is where remote lists are cached.
	Dir string `koanf:"dir" validate:"required"`
	// Folders maps an alias usable as "name.ext@alias" to a directory.
	// "profile" defaults to Dir.
	Folders map[string]string `koanf:"folders" validate:"dive,keys,folder_alias,endkeys,required"`
}

type FetchConfig struct {
	Timeout   time.Duration     `koanf:"timeout" validate:"required"`
	Retries   int               `koanf:"retries" validate:"gte=1,lte=10"`
	Backoff   time.Duration     `koanf:"backoff" validate:"gte=0"`
	Staleness time.Duration     `koanf:"staleness" validate:"required"`
	MaxSize   datasize.ByteSize `koanf:"max_size" validate:"required"`
	UserAgent string            `koanf:"user_agent" validate:"required"`
	// Refresh is how often remote lists are checked against Staleness.
	Refresh time.Duration `koanf:"refresh" validate:"gte=0"`
}

type RulesConfig struct {
	// Sigils maps a one-character line prefix to "auto" or "redirect".
	Sigils map[string]string `koanf:"sigils" validate:"required,min=1,dive,keys,sigil,endkeys,oneof=auto redirect"`
	// FPRate is the Bloom prefilter false-positive rate; zero disables it.
	FPRate float64 `koanf:"fp_rate" validate:"gte=0,lt=1"`
}

type CacheConfig struct {
	// Size of the decision cache; zero disables it.
	Size int `koanf:"size" validate:"gte=0"`
}

type StateConfig struct {
	DB string `koanf:"db" validate:"required"`
}

// DEFAULT_APP_CONFIG defines the default application configuration.
var DEFAULT_APP_CONFIG = AppConfig{
	Env:    "prod",
	Log:    LoggingConfig{Level: "info", MaxSizeMB: 10},
	Listen: "127.0.0.1:8053",
	Profiles: ProfilesConfig{
		Slots:   5,
		Dir:     "/var/lib/simplefilter/lists",
		Folders: map[string]string{},
	},
	Lists: map[string]string{},
	Fetch: FetchConfig{
		Timeout:   30 * time.Second,
		Retries:   3,
		Backoff:   2 * time.Second,
		Staleness: 4 * 24 * time.Hour,
		MaxSize:   50 * datasize.MB,
		UserAgent: "simplefilter/1",
		Refresh:   time.Hour,
	},
	Rules: RulesConfig{
		Sigils: map[string]string{"$": "auto", "^": "redirect"},
		FPRate: 0.01,
	},
	Cache: CacheConfig{Size: 10000},
	State: StateConfig{DB: "/var/lib/simplefilter/state.db"},
}

var (
	listKeyRe     = regexp.MustCompile(`^filter_list_(0|[1-9][0-9]?)$`)
	folderAliasRe = regexp.MustCompile(`^\w+$`)
)

// ListKey returns the configuration key of profile slot.
func ListKey(slot int) string { return ListKeyPrefix + strconv.Itoa(slot) }

// ParseListKey returns the slot of a "filter_list_<n>" key.
func ParseListKey(key string) (int, bool) {
	m := listKeyRe.FindStringSubmatch(key)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	return n, err == nil
}

func validListKey(fl validator.FieldLevel) bool {
	return listKeyRe.MatchString(fl.Field().String())
}

func validFolderAlias(fl validator.FieldLevel) bool {
	return folderAliasRe.MatchString(fl.Field().String())
}

// validSigil accepts a single non-blank character.
func validSigil(fl validator.FieldLevel) bool {
	s := []rune(fl.Field().String())
	return len(s) == 1 && s[0] != ' ' && s[0] != '\t'
}

// validateAppConfig rejects list keys beyond the configured number of slots.
func validateAppConfig(sl validator.StructLevel) {
	cfg := sl.Current().Interface().(AppConfig)
	for key := range cfg.Lists {
		if slot, ok := ParseListKey(key); ok && slot >= cfg.Profiles.Slots {
			sl.ReportError(cfg.Lists[key], "Lists["+key+"]", "Lists", "slot_range", key)
		}
	}
}

// envLoader loads environment variables with the prefix "SIMPLEFILTER_".
// It lower-cases keys and maps "__" to the koanf delimiter, and can be mocked
// in tests.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
			key = strings.ReplaceAll(key, "__", ".")
			return key, strings.TrimSpace(value)
		},
	}), nil)
}

// defaultLoader loads DEFAULT_APP_CONFIG into k using the structs provider.
// The "firefox" (install directory) and "winuser" (home directory) aliases
// are added when the host can report them.
var defaultLoader = func(k *koanf.Koanf) error {
	defaults := DEFAULT_APP_CONFIG
	defaults.Profiles.Folders = maps.Clone(DEFAULT_APP_CONFIG.Profiles.Folders)
	if exe, err := os.Executable(); err == nil {
		defaults.Profiles.Folders["firefox"] = filepath.Dir(exe)
	}
	if home, err := os.UserHomeDir(); err == nil {
		defaults.Profiles.Folders["winuser"] = home
	}
	return k.Load(structs.Provider(defaults, "koanf"), nil)
}

// fileLoader merges the YAML file at path into k.
var fileLoader = func(k *koanf.Koanf, path string) error {
	return k.Load(file.Provider(path), yaml.Parser())
}

// fileWatcher calls onChange whenever the file at path changes.
var fileWatcher = func(path string, onChange func(err error)) error {
	return file.Provider(path).Watch(func(_ interface{}, err error) {
		onChange(err)
	})
}

// registerValidation registers the custom tags used by AppConfig.
var registerValidation = func(v *validator.Validate) error {
	for tag, fn := range map[string]validator.Func{
		"list_key":     validListKey,
		"folder_alias": validFolderAlias,
		"sigil":        validSigil,
	} {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return err
		}
	}
	v.RegisterStructValidation(validateAppConfig, AppConfig{})
	return nil
}

// Load builds an AppConfig from the defaults, the YAML file at path (skipped
// when empty) and the environment, then validates it.
func Load(path string) (*AppConfig, error) {
	k := koanf.New(".")

	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	if path != "" {
		if err := fileLoader(k, path); err != nil {
			return nil, fmt.Errorf("error loading config file %s: %w", path, err)
		}
	}

	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	if cfg.Profiles.Folders == nil {
		cfg.Profiles.Folders = map[string]string{}
	}
	if _, ok := cfg.Profiles.Folders["profile"]; !ok {
		cfg.Profiles.Folders["profile"] = cfg.Profiles.Dir
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidation(validate); err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}

// Watch reloads the configuration whenever the YAML file at path changes and
// passes the result to cb. Invalid files are reported through cb and leave the
// caller's config untouched.
func Watch(path string, cb func(cfg *AppConfig, err error)) error {
	if path == "" {
		return fmt.Errorf("watch: no config file")
	}
	return fileWatcher(path, func(err error) {
		if err != nil {
			cb(nil, fmt.Errorf("watching %s: %w", path, err))
			return
		}
		cb(Load(path))
	})
}

// ListChanges returns the list keys whose reference differs between c and
// next. Removed keys map to "".
func (c *AppConfig) ListChanges(next *AppConfig) map[string]string {
	changed := map[string]string{}
	for key, ref := range next.Lists {
		if c.Lists[key] != ref {
			changed[key] = ref
		}
	}
	for key := range c.Lists {
		if _, ok := next.Lists[key]; !ok && c.Lists[key] != "" {
			changed[key] = ""
		}
	}
	return changed
}

// Clone returns a deep copy of c.
func (c *AppConfig) Clone() *AppConfig {
	out := *c
	out.Lists = maps.Clone(c.Lists)
	out.Profiles.Folders = maps.Clone(c.Profiles.Folders)
	out.Rules.Sigils = maps.Clone(c.Rules.Sigils)
	return &out
}
