package db

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	driverName     = "mysql"
	ConfigFilePath = "config/config.yaml"

	ModeDev     = "dev"
	ModeRelease = "release"
)

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
}

type Certs struct {
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DeductionType is one entry of the deduction type picker (key is ps_deduction.deduction_type).
type DeductionType struct {
	Key   string `yaml:"key" json:"key"`
	Label string `yaml:"label" json:"label"`
}

type UploadConfig struct {
	MaxBytes int64 `yaml:"max_bytes"`
	PageSize int   `yaml:"page_size"`
}

type Config struct {
	Version        string          `yaml:"version"`
	Mode           string          `yaml:"mode"`
	Server         ServerConfig    `yaml:"server"`
	DB             DatabaseConfig  `yaml:"database"`
	Certificate    Certs           `yaml:"certificate"`
	DeductionTypes []DeductionType `yaml:"deduction_types"`
	Upload         UploadConfig    `yaml:"upload"`
}

// LoadConfig reads the YAML file, then applies .env / environment overrides.
// The returned config is treated as read-only for the life of the process.
func LoadConfig(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := godotenv.Load(); err != nil {
		log.Println("[INFO] no .env file found, using process environment")
	}
	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("APP_MODE"); v != "" {
		c.Mode = v
	}
	if v := os.Getenv("MYSQL_HOST"); v != "" {
		c.DB.Host = v
	}
	if v := os.Getenv("MYSQL_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.DB.Port = p
		} else {
			log.Printf("[WARN] ignoring invalid MYSQL_PORT %q", v)
		}
	}
	if v := os.Getenv("MYSQL_USER"); v != "" {
		c.DB.Username = v
	}
	if v := os.Getenv("MYSQL_PASSWORD"); v != "" {
		c.DB.Password = v
	}
	if v := os.Getenv("MYSQL_DATABASE"); v != "" {
		c.DB.DBName = v
	}
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeRelease
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":3000"
	}
	if c.DB.Port == 0 {
		c.DB.Port = 3306
	}
	if c.Upload.MaxBytes <= 0 {
		c.Upload.MaxBytes = 10 << 20
	}
	if c.Upload.PageSize <= 0 {
		c.Upload.PageSize = 15
	}
}

func (c *Config) Validate() error {
	if c.Mode != ModeDev && c.Mode != ModeRelease {
		return fmt.Errorf("invalid mode %q (want %s or %s)", c.Mode, ModeDev, ModeRelease)
	}
	if c.DB.DBName == "" {
		return errors.New("database.dbname is required")
	}
	seen := make(map[string]struct{}, len(c.DeductionTypes))
	for _, t := range c.DeductionTypes {
		if t.Key == "" {
			return errors.New("deduction_types: key is required")
		}
		if _, dup := seen[t.Key]; dup {
			return fmt.Errorf("deduction_types: duplicate key %q", t.Key)
		}
		seen[t.Key] = struct{}{}
	}
	return nil
}

func (c *Config) IsDev() bool { return c.Mode == ModeDev }

// UseTLS reports whether both certificate files are configured.
func (c *Config) UseTLS() bool { return c.Certificate.Cert != "" && c.Certificate.Key != "" }

// DSN lets the driver escape credentials; a password may contain '@', '/' or ':'.
func DSN(c DatabaseConfig) string {
	mc := mysql.NewConfig()
	mc.User = c.Username
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	mc.DBName = c.DBName
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.TLSConfig = "false"
	mc.Timeout = 3 * time.Second
	mc.ReadTimeout = 5 * time.Second
	mc.WriteTimeout = 5 * time.Second
	return mc.FormatDSN()
}

func Connect(c DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open(driverName, DSN(c))
	if err != nil {
		return nil, fmt.Errorf("failed to prepare connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// one process, one pool; keep well under max_connections
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return db, nil
}
