package config

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	defaultBatchSize  = 5000
	defaultMaxWorkers = 1
	defaultPgPort     = 5432
	defaultPgSchema   = "public"

	// Bounded so a fat-fingered config cannot fan out hundreds of concurrent loads.
	maxWorkersCeiling = 16

	PostgresPasswordEnvKey = "POSTGRES_PASSWORD"
)

type Sentry struct {
	DSN string `yaml:"dsn"`
}

type BigQuery struct {
	// PathToCredentials is _optional_ if you have GOOGLE_APPLICATION_CREDENTIALS set as an env var
	// Links to credentials: https://cloud.google.com/docs/authentication/application-default-credentials#GAC
	PathToCredentials string `yaml:"pathToCredentials"`
	ProjectID         string `yaml:"projectID"`
	Dataset           string `yaml:"dataset"`
	Location          string `yaml:"location"`
}

func (b BigQuery) DSN() string {
	return fmt.Sprintf("bigquery://%s/%s", b.ProjectID, b.Dataset)
}

type GCS struct {
	// PathToCredentials falls back to the BigQuery credentials, then to application default credentials.
	PathToCredentials string `yaml:"pathToCredentials"`
	Bucket            string `yaml:"bucket"`
}

type Postgres struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Schema   string `yaml:"schema"`
}

func (p Postgres) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", p.Username, p.Password, p.Host, p.Port, p.Database)
}

func (p Postgres) String() string {
	// Don't log credentials.
	return fmt.Sprintf("host=%s, port=%d, database=%s, user_set=%v, pass_set=%v",
		p.Host, p.Port, p.Database, p.Username != "", p.Password != "")
}

type Table struct {
	Name             string `yaml:"name"`
	DestinationTable string `yaml:"destinationTable"`
	// Truncate will replace the destination table's contents on every load instead of appending.
	Truncate bool `yaml:"truncate"`
}

func (t Table) Destination() string {
	if t.DestinationTable != "" {
		return t.DestinationTable
	}

	return t.Name
}

type Transfer struct {
	BatchSize  int     `yaml:"batchSize"`
	MaxWorkers int     `yaml:"maxWorkers"`
	Tables     []Table `yaml:"tables"`
}

type Config struct {
	BigQuery BigQuery `yaml:"bigquery"`
	GCS      GCS      `yaml:"gcs"`
	Postgres Postgres `yaml:"postgres"`
	Transfer Transfer `yaml:"transfer"`

	Reporting struct {
		Sentry *Sentry `yaml:"sentry"`
	} `yaml:"reporting"`
}

func readFileToConfig(pathToConfig string) (*Config, error) {
	file, err := os.Open(pathToConfig)
	if err != nil {
		return nil, err
	}

	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}

	var config Config
	if err = yaml.Unmarshal(bytes, &config); err != nil {
		return nil, err
	}

	if config.Transfer.BatchSize == 0 {
		config.Transfer.BatchSize = defaultBatchSize
	}

	if config.Transfer.MaxWorkers == 0 {
		config.Transfer.MaxWorkers = defaultMaxWorkers
	}

	if config.Postgres.Port == 0 {
		config.Postgres.Port = defaultPgPort
	}

	if config.Postgres.Schema == "" {
		config.Postgres.Schema = defaultPgSchema
	}

	if pw := os.Getenv(PostgresPasswordEnvKey); pw != "" {
		config.Postgres.Password = pw
	}

	return &config, nil
}

// Validate checks everything we need before any client gets built.
// A config failure here is fatal, no transfer is ever attempted against a half-valid document.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}

	if c.BigQuery.ProjectID == "" {
		return fmt.Errorf("config is invalid, bigquery projectID is empty")
	}

	if c.BigQuery.Dataset == "" {
		return fmt.Errorf("config is invalid, bigquery dataset is empty")
	}

	if c.GCS.Bucket == "" {
		return fmt.Errorf("config is invalid, gcs bucket is empty")
	}

	if c.Postgres.Host == "" || c.Postgres.Database == "" || c.Postgres.Username == "" {
		return fmt.Errorf("config is invalid, postgres settings are incomplete: %s", c.Postgres.String())
	}

	if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
		return fmt.Errorf("config is invalid, postgres port is out of range: %d", c.Postgres.Port)
	}

	if c.Transfer.BatchSize <= 0 {
		return fmt.Errorf("config is invalid, transfer batch size has to be a positive number, current value: %d", c.Transfer.BatchSize)
	}

	if c.Transfer.MaxWorkers <= 0 || c.Transfer.MaxWorkers > maxWorkersCeiling {
		return fmt.Errorf("config is invalid, transfer max workers is outside of our range: %d, expected between 1 and %d",
			c.Transfer.MaxWorkers, maxWorkersCeiling)
	}

	seenTables := make(map[string]bool)
	for _, table := range c.Transfer.Tables {
		if table.Name == "" {
			return fmt.Errorf("config is invalid, transfer table with an empty name")
		}

		if seenTables[table.Name] {
			return fmt.Errorf("config is invalid, transfer table %q is listed more than once", table.Name)
		}

		seenTables[table.Name] = true
	}

	return nil
}
