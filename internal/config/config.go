// Package config assembles the service configuration from defaults, an
// optional JSON file, environment variables and command line flags, in
// increasing order of priority, and validates the result.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	env "github.com/caarlos0/env/v6"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"golang.org/x/text/language"
)

// Config holds every tunable of the user directory service.
type Config struct {
	RunAddr             string        `env:"SERVER_ADDRESS" validate:"hostname_port"`
	GRPCAddr            string        `env:"GRPC_ADDRESS" validate:"omitempty,hostname_port"`
	LogLevel            string        `env:"LOG_LEVEL" validate:"loglevel"`
	APIBaseURL          string        `env:"USERS_API_URL" validate:"url"`
	APITimeout          time.Duration `env:"USERS_API_TIMEOUT" validate:"min=0"`
	FetchLimit          int           `env:"FETCH_LIMIT" validate:"min=1,max=100"`
	PageSize            int           `env:"PAGE_SIZE" validate:"min=1"`
	FavoritesFile       string        `env:"FILE_STORAGE_PATH" validate:"omitempty,filepath"`
	WatchFavoritesFile  bool          `env:"WATCH_FAVORITES_FILE"`
	DatabaseDSN         string        `env:"DATABASE_DSN"`
	DBConnectionTimeout time.Duration `env:"DB_CONNECTION_TIMEOUT"`
	MigrationsDir       string        `env:"MIGRATIONS_DIR"`
	RedisAddr           string        `env:"REDIS_ADDRESS" validate:"omitempty,hostname_port"`
	RedisDB             int           `env:"REDIS_DB" validate:"min=0"`
	Locale              string        `env:"LOCALE" validate:"locale"`
	TrustedSubnet       string        `env:"TRUSTED_SUBNET" validate:"omitempty,cidr"`
	NotifierCapacity    int           `env:"NOTIFIER_CAPACITY" validate:"min=1"`
	ConfigFile          string        `env:"CONFIG"`
}

// jsonConfig mirrors Config for the JSON file; durations are written as "5s".
type jsonConfig struct {
	RunAddr             string `json:"server_address"`
	GRPCAddr            string `json:"grpc_address"`
	LogLevel            string `json:"log_level"`
	APIBaseURL          string `json:"users_api_url"`
	APITimeout          string `json:"users_api_timeout"`
	FetchLimit          int    `json:"fetch_limit"`
	PageSize            int    `json:"page_size"`
	FavoritesFile       string `json:"file_storage_path"`
	WatchFavoritesFile  bool   `json:"watch_favorites_file"`
	DatabaseDSN         string `json:"database_dsn"`
	DBConnectionTimeout string `json:"db_connection_timeout"`
	MigrationsDir       string `json:"migrations_dir"`
	RedisAddr           string `json:"redis_address"`
	RedisDB             int    `json:"redis_db"`
	Locale              string `json:"locale"`
	TrustedSubnet       string `json:"trusted_subnet"`
	NotifierCapacity    int    `json:"notifier_capacity"`
}

var defaultConfig = Config{
	RunAddr:             ":8080",
	LogLevel:            "info",
	APIBaseURL:          "https://dummyjson.com",
	APITimeout:          10 * time.Second,
	FetchLimit:          30,
	PageSize:            10,
	FavoritesFile:       "",
	DatabaseDSN:         "",
	DBConnectionTimeout: 10 * time.Second,
	MigrationsDir:       "migrations",
	RedisAddr:           "",
	RedisDB:             0,
	Locale:              "en",
	TrustedSubnet:       "",
	NotifierCapacity:    16,
}

type InitOption func(*initOptions)

type initOptions struct {
	disableFlagsParsing bool
	args                []string
}

// WithDisableFlagsParsing skips command line parsing; used by tests and by
// binaries that own their flags (the cobra client).
func WithDisableFlagsParsing(disableFlagsParsing bool) InitOption {
	return func(options *initOptions) {
		options.disableFlagsParsing = disableFlagsParsing
	}
}

// WithArgs parses the given arguments instead of os.Args[1:].
func WithArgs(args []string) InitOption {
	return func(options *initOptions) {
		options.args = args
	}
}

// Default returns a copy of the built-in defaults.
func Default() Config {
	return defaultConfig
}

// New builds the configuration. Priority: flags > env > JSON file > defaults.
func New(optionsProto ...InitOption) (*Config, error) {
	options := &initOptions{
		disableFlagsParsing: false,
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}
	if options.args == nil && len(os.Args) > 1 {
		options.args = os.Args[1:]
	}

	err := godotenv.Load()
	if err != nil {
		log.Printf("Unable to load .env file: %v", err)
	}

	values := &Config{}
	applyDefaults(values, defaultConfig)

	var valuesFromEnv Config
	if err := env.Parse(&valuesFromEnv); err != nil {
		return nil, err
	}

	var valuesFromFlags Config
	var setFlags map[string]bool
	if !options.disableFlagsParsing {
		setFlags, err = parseFlags(&valuesFromFlags, options.args)
		if err != nil {
			return nil, err
		}
	}

	configFile := valuesFromEnv.ConfigFile
	if valuesFromFlags.ConfigFile != "" {
		configFile = valuesFromFlags.ConfigFile
	}
	if configFile != "" {
		if err := values.loadJSON(configFile); err != nil {
			return nil, err
		}
		values.ConfigFile = configFile
	}

	applyNonZero(values, valuesFromEnv)
	applyFlags(values, valuesFromFlags, setFlags)

	if err := values.validate(); err != nil {
		return nil, err
	}

	return values, nil
}

func applyDefaults(values *Config, defaults Config) {
	*values = defaults
}

func (c *Config) loadJSON(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("in internal/config/config.go/loadJSON(): error while `os.ReadFile()` calling: %w", err)
	}

	var fromFile jsonConfig
	if err := json.Unmarshal(data, &fromFile); err != nil {
		return fmt.Errorf("in internal/config/config.go/loadJSON(): error while `json.Unmarshal()` calling: %w", err)
	}

	parsed := Config{
		RunAddr:            fromFile.RunAddr,
		GRPCAddr:           fromFile.GRPCAddr,
		LogLevel:           fromFile.LogLevel,
		APIBaseURL:         fromFile.APIBaseURL,
		FetchLimit:         fromFile.FetchLimit,
		PageSize:           fromFile.PageSize,
		FavoritesFile:      fromFile.FavoritesFile,
		WatchFavoritesFile: fromFile.WatchFavoritesFile,
		DatabaseDSN:        fromFile.DatabaseDSN,
		MigrationsDir:      fromFile.MigrationsDir,
		RedisAddr:          fromFile.RedisAddr,
		RedisDB:            fromFile.RedisDB,
		Locale:             fromFile.Locale,
		TrustedSubnet:      fromFile.TrustedSubnet,
		NotifierCapacity:   fromFile.NotifierCapacity,
	}
	if fromFile.APITimeout != "" {
		parsed.APITimeout, err = time.ParseDuration(fromFile.APITimeout)
		if err != nil {
			return fmt.Errorf("invalid users_api_timeout: %w", err)
		}
	}
	if fromFile.DBConnectionTimeout != "" {
		parsed.DBConnectionTimeout, err = time.ParseDuration(fromFile.DBConnectionTimeout)
		if err != nil {
			return fmt.Errorf("invalid db_connection_timeout: %w", err)
		}
	}

	applyNonZero(c, parsed)

	return nil
}

func applyNonZero(values *Config, source Config) {
	if source.RunAddr != "" {
		values.RunAddr = source.RunAddr
	}
	if source.GRPCAddr != "" {
		values.GRPCAddr = source.GRPCAddr
	}
	if source.LogLevel != "" {
		values.LogLevel = source.LogLevel
	}
	if source.APIBaseURL != "" {
		values.APIBaseURL = source.APIBaseURL
	}
	if source.APITimeout != 0 {
		values.APITimeout = source.APITimeout
	}
	if source.FetchLimit != 0 {
		values.FetchLimit = source.FetchLimit
	}
	if source.PageSize != 0 {
		values.PageSize = source.PageSize
	}
	if source.FavoritesFile != "" {
		values.FavoritesFile = source.FavoritesFile
	}
	if source.WatchFavoritesFile {
		values.WatchFavoritesFile = true
	}
	if source.DatabaseDSN != "" {
		values.DatabaseDSN = source.DatabaseDSN
	}
	if source.DBConnectionTimeout != 0 {
		values.DBConnectionTimeout = source.DBConnectionTimeout
	}
	if source.MigrationsDir != "" {
		values.MigrationsDir = source.MigrationsDir
	}
	if source.RedisAddr != "" {
		values.RedisAddr = source.RedisAddr
	}
	if source.RedisDB != 0 {
		values.RedisDB = source.RedisDB
	}
	if source.Locale != "" {
		values.Locale = source.Locale
	}
	if source.TrustedSubnet != "" {
		values.TrustedSubnet = source.TrustedSubnet
	}
	if source.NotifierCapacity != 0 {
		values.NotifierCapacity = source.NotifierCapacity
	}
}

func parseFlags(values *Config, args []string) (map[string]bool, error) {
	flags := flag.NewFlagSet("userdir", flag.ContinueOnError)
	flags.StringVar(&values.RunAddr, "a", "", "address and port to run server")
	flags.StringVar(&values.GRPCAddr, "g", "", "address and port to run gRPC server, empty disables it")
	flags.StringVar(&values.LogLevel, "l", "", "logger level")
	flags.StringVar(&values.APIBaseURL, "u", "", "base URL of the remote users API")
	flags.StringVar(&values.FavoritesFile, "f", "", "JSON file name with favorites storage")
	flags.BoolVar(&values.WatchFavoritesFile, "w", false, "reload favorites when the storage file changes")
	flags.StringVar(&values.DatabaseDSN, "d", "", "a string with the database connection details")
	flags.StringVar(&values.RedisAddr, "r", "", "redis address for favorites storage")
	flags.IntVar(&values.PageSize, "p", 0, "records per page")
	flags.StringVar(&values.TrustedSubnet, "t", "", "trusted subnet (CIDR) for internal endpoints")
	flags.StringVar(&values.ConfigFile, "c", "", "path to JSON config file")
	flags.StringVar(&values.ConfigFile, "config", "", "path to JSON config file")

	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	set := map[string]bool{}
	flags.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	return set, nil
}

func applyFlags(values *Config, fromFlags Config, set map[string]bool) {
	if set["a"] {
		values.RunAddr = fromFlags.RunAddr
	}
	if set["g"] {
		values.GRPCAddr = fromFlags.GRPCAddr
	}
	if set["l"] {
		values.LogLevel = fromFlags.LogLevel
	}
	if set["u"] {
		values.APIBaseURL = fromFlags.APIBaseURL
	}
	if set["f"] {
		values.FavoritesFile = fromFlags.FavoritesFile
	}
	if set["w"] {
		values.WatchFavoritesFile = fromFlags.WatchFavoritesFile
	}
	if set["d"] {
		values.DatabaseDSN = fromFlags.DatabaseDSN
	}
	if set["r"] {
		values.RedisAddr = fromFlags.RedisAddr
	}
	if set["p"] {
		values.PageSize = fromFlags.PageSize
	}
	if set["t"] {
		values.TrustedSubnet = fromFlags.TrustedSubnet
	}
}

func validateFilePath(fieldLevel validator.FieldLevel) bool {
	path := fieldLevel.Field().String()
	_, err := os.Stat(path)

	return err == nil || os.IsNotExist(err)
}

func validateLogLevel(fieldLevel validator.FieldLevel) bool {
	value := fieldLevel.Field().String()

	allowedLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"fatal": true,
	}

	return allowedLogLevels[value]
}

func validateLocale(fieldLevel validator.FieldLevel) bool {
	_, err := language.Parse(fieldLevel.Field().String())
	return err == nil
}

func (c *Config) validate() error {
	validate := validator.New()

	err := validate.RegisterValidation("loglevel", validateLogLevel)
	if err != nil {
		return err
	}

	err = validate.RegisterValidation("filepath", validateFilePath)
	if err != nil {
		return err
	}

	err = validate.RegisterValidation("locale", validateLocale)
	if err != nil {
		return err
	}

	return validate.Struct(c)
}
