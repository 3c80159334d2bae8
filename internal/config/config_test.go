package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
server:
  grpc_addr: ":6000"
store:
  driver: memory-sequenced
  sequenced_buffer: 64
mysql:
  host: db
  db_name: ledger
kafka:
  enabled: true
  brokers: ["k1:9092"]
report:
  timezone: Asia/Taipei
seed:
  accounts:
    - { id: 1, first_name: Alice, last_name: Chen }
    - { id: 2, first_name: Bob, last_name: Lin, deleted: true }
  cards:
    - { id: 10, owner_id: 1, brand: visa, last4: "4242", exp_month: 12, exp_year: 2030 }
`

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	require.NoError(t, err)
	assert.Equal(t, DefaultGRPCAddr, cfg.Server.GRPCAddr)
	assert.Equal(t, DriverMemoryMutex, cfg.Store.Driver)
	assert.Equal(t, DefaultWALPath, cfg.Store.WALPath)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 3306, cfg.MySQL.Port)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, "UTC", cfg.Report.Timezone)
	assert.NoError(t, cfg.Validate())
}

func TestParseSample(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":6000", cfg.Server.GRPCAddr)
	assert.Equal(t, DriverMemorySequenced, cfg.Store.Driver)
	assert.Equal(t, 64, cfg.Store.SequencedBuffer)
	assert.Equal(t, "db", cfg.MySQL.Host)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Taipei", loc.String())

	now := time.Now()
	accounts := cfg.SeedAccounts(now)
	require.Len(t, accounts, 2)
	assert.Equal(t, "Alice", accounts[0].FirstName)
	assert.True(t, accounts[0].Active())
	assert.True(t, accounts[0].Balance.IsZero())
	assert.False(t, accounts[1].Active())

	cards := cfg.SeedCards(now)
	require.Len(t, cards, 1)
	assert.Equal(t, int64(1), cards[0].OwnerID)
	assert.Equal(t, "4242", cards[0].Last4)
}

func TestValidate(t *testing.T) {
	cfg, err := Parse([]byte("store: {driver: redis}"))
	require.NoError(t, err)
	assert.Error(t, cfg.Validate())

	cfg, err = Parse([]byte("report: {timezone: Mars/Olympus}"))
	require.NoError(t, err)
	assert.Error(t, cfg.Validate())

	cfg, err = Parse([]byte("kafka: {enabled: true}"))
	require.NoError(t, err)
	assert.Error(t, cfg.Validate())
}

func TestLoadEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	t.Setenv("LEDGER_GRPC_ADDR", ":7000")
	t.Setenv("LEDGER_STORE_DRIVER", "postgres")
	t.Setenv("POSTGRES_PASSWORD", "s3cret")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.GRPCAddr)
	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, "s3cret", cfg.Postgres.Password)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
