package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"
	// 容器內不一定有系統時區資料
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-wallet-ledger/pkg/mysql"
	"github.com/JoeShih716/go-wallet-ledger/pkg/postgres"
)

// StoreDriver 帳本儲存的實作
type StoreDriver string

const (
	// Level 0: MySQL 悲觀鎖
	DriverMySQL StoreDriver = "mysql"
	// Level 0: PostgreSQL 條件式更新
	DriverPostgres StoreDriver = "postgres"
	// Level 1: 記憶體 + 帳戶鎖
	DriverMemoryMutex StoreDriver = "memory-mutex"
	// Level 2: 記憶體 + 單一寫入者
	DriverMemorySequenced StoreDriver = "memory-sequenced"
)

// 預設值
const (
	DefaultConfigPath = "config/config.yaml"
	DefaultGRPCAddr   = ":50051"
	DefaultWALPath    = "wal.log"
)

type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Store    StoreConfig     `yaml:"store"`
	MySQL    mysql.Config    `yaml:"mysql"`
	Postgres postgres.Config `yaml:"postgres"`
	Kafka    KafkaConfig     `yaml:"kafka"`
	Report   ReportConfig    `yaml:"report"`
	Seed     SeedConfig      `yaml:"seed"`
}

type ServerConfig struct {
	GRPCAddr        string        `yaml:"grpc_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LogLevel        string        `yaml:"log_level"`
}

type StoreConfig struct {
	Driver  StoreDriver `yaml:"driver"`
	WALPath string      `yaml:"wal_path"`
	// SequencedBuffer memory-sequenced 輸送帶容量
	SequencedBuffer int `yaml:"sequenced_buffer"`
	// AutoMigrate mysql 啟動時建立資料表
	AutoMigrate bool `yaml:"auto_migrate"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type ReportConfig struct {
	// Timezone 日期區間切日使用的時區 (IANA 名稱)
	Timezone string `yaml:"timezone"`
}

// SeedConfig 記憶體帳本的初始帳戶與卡片
type SeedConfig struct {
	Accounts []SeedAccount `yaml:"accounts"`
	Cards    []SeedCard    `yaml:"cards"`
}

type SeedAccount struct {
	domain.Account `yaml:",inline"`
	Deleted        bool `yaml:"deleted"`
}

type SeedCard struct {
	domain.Card `yaml:",inline"`
	Deleted     bool `yaml:"deleted"`
}

// Load 讀取 .env 與設定檔，再以環境變數覆蓋
//
// 參數:
//
//	path: 設定檔路徑，空字串時使用 LEDGER_CONFIG 或預設路徑
func Load(path string) (*Config, error) {
	// .env 不存在不算錯誤
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if path == "" {
		path = getenv("LEDGER_CONFIG", DefaultConfigPath)
	}
	cfgData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	cfg, err := Parse(cfgData)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv()
	return cfg, cfg.Validate()
}

// Parse 解析 YAML 並補全預設值
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.setDefaults()
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Server.GRPCAddr == "" {
		c.Server.GRPCAddr = DefaultGRPCAddr
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DriverMemoryMutex
	}
	if c.Store.WALPath == "" {
		c.Store.WALPath = DefaultWALPath
	}
	if c.Report.Timezone == "" {
		c.Report.Timezone = "UTC"
	}
	// 補全 MySQL / Postgres 預設配置 (如果 yaml 沒寫)
	c.MySQL.SetDefaults()
	c.Postgres.SetDefaults()
}

// applyEnv 以環境變數覆蓋設定 (密碼不寫在設定檔)
func (c *Config) applyEnv() {
	c.Server.GRPCAddr = getenv("LEDGER_GRPC_ADDR", c.Server.GRPCAddr)
	c.Store.Driver = StoreDriver(getenv("LEDGER_STORE_DRIVER", string(c.Store.Driver)))
	c.MySQL.Password = getenv("MYSQL_PASSWORD", c.MySQL.Password)
	c.Postgres.Password = getenv("POSTGRES_PASSWORD", c.Postgres.Password)
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		c.Kafka.Brokers = strings.Split(brokers, ",")
	}
}

// Validate 檢查設定是否可用
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMySQL, DriverPostgres, DriverMemoryMutex, DriverMemorySequenced:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka enabled but no brokers configured")
	}
	return nil
}

// Location 切日用的時區
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Report.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid report timezone %q: %w", c.Report.Timezone, err)
	}
	return loc, nil
}

// SeedAccounts 轉成帳戶，餘額一律從 0 開始，由分錄累積
func (c *Config) SeedAccounts(now time.Time) []domain.Account {
	accounts := make([]domain.Account, 0, len(c.Seed.Accounts))
	for _, s := range c.Seed.Accounts {
		a := *domain.NewAccount(s.ID, s.FirstName, s.LastName)
		if s.Deleted {
			a.DeletedAt = &now
		}
		accounts = append(accounts, a)
	}
	return accounts
}

// SeedCards 轉成卡片
func (c *Config) SeedCards(now time.Time) []domain.Card {
	cards := make([]domain.Card, 0, len(c.Seed.Cards))
	for _, s := range c.Seed.Cards {
		card := s.Card
		if s.Deleted {
			card.DeletedAt = &now
		}
		cards = append(cards, card)
	}
	return cards
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
