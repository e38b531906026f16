package config

import (
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env             string        `yaml:"env" env-default:"local" env-description:"Environment" env-choices:"local,dev,prod"`
	ApiPort         int           `yaml:"api_port" env-default:"8080"`
	ApiHost         string        `yaml:"api_host" env-default:"localhost"`
	JwtSecret       string        `yaml:"jwt_secret" env:"JWT_SECRET" env-default:"change-me"`
	TokenTTL        time.Duration `yaml:"token_ttl" env-default:"24h"`
	StartingBalance int64         `yaml:"starting_balance" env-default:"5000"`
	Storage         Storage       `yaml:"storage"`
	Kafka           Kafka         `yaml:"kafka"`
}

// Storage selects the engine and carries per-engine settings. It is passed
// explicitly at construction; nothing reads it from package-level state.
type Storage struct {
	Engine    string        `yaml:"engine" env:"DB_ENGINE" env-default:"sqlite" env-choices:"sqlite,mysql"`
	OpTimeout time.Duration `yaml:"op_timeout" env-default:"3s"`
	Sqlite    Sqlite        `yaml:"sqlite"`
	Mysql     Mysql         `yaml:"mysql"`
}

type Sqlite struct {
	Path string `yaml:"path" env:"DB_PATH" env-default:"bank_website.db"`
}

type Mysql struct {
	Host string `yaml:"host" env:"MYSQL_HOST" env-default:"localhost"`
	Port int    `yaml:"port" env:"MYSQL_PORT" env-default:"3306"`
	User string `yaml:"user" env:"MYSQL_USER" env-default:"root"`
	Pass string `yaml:"pass" env:"MYSQL_PASSWORD" env-default:""`
	Db   string `yaml:"db" env:"MYSQL_DATABASE" env-default:"bank"`
}

// Kafka is optional; an empty broker list disables event publishing.
type Kafka struct {
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS"`
	Topic   string   `yaml:"topic" env-default:"transaction_completed"`
}

func MustLoad() *Config {
	path := fetchConfigPath()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		panic("config file does not exist: " + path)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		panic("Failed to read config" + err.Error())
	}

	return &cfg
}

func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	return res
}
