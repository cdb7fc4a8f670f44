package config

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/viper"
)

type Config struct {
	App           App           `yaml:"app"`
	Server        Server        `yaml:"server"`
	Upload        Upload        `yaml:"upload"`
	Edge          Edge          `yaml:"edge"`
	ArchiveBucket string        `yaml:"archive_bucket"`
	DB            *sql.DB       `yaml:"db"`
	Queue         *RabbitMQ     `yaml:"rabbitmq"`
	Storage       *minio.Client `yaml:"storage"`
}

type App struct {
	Environment string `yaml:"environment"`
}

type Server struct {
	HttpPort string `yaml:"http_port"`
}

type Upload struct {
	Endpoint      string        `yaml:"endpoint"`
	Token         string        `yaml:"token"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type Edge struct {
	Generation   string   `yaml:"generation"`
	AppOrigin    string   `yaml:"app_origin"`
	ShellURL     string   `yaml:"shell_url"`
	ShellAssets  []string `yaml:"shell_assets"`
	AllowedHosts []string `yaml:"allowed_hosts"`
	APIPrefixes  []string `yaml:"api_prefixes"`
}

type RabbitMQ struct {
	Host            string `json:"host"`
	Port            int    `json:"port"`
	User            string `json:"user"`
	Pass            string `json:"pass"`
	Kind            string `json:"kind"`
	ControlExchange string `json:"control_exchange"`
	ControlQueue    string `json:"control_queue"`
	EventExchange   string `json:"event_exchange"`
}

func Load(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.SetDefault("store.path", "consult-edge.db")
	viper.SetDefault("upload.sweep_interval", "30s")
	viper.SetDefault("edge.shell_url", "/index.html")
	err := viper.ReadInConfig()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", viper.GetString("store.path"))
	if err != nil {
		return nil, err
	}

	var queue *RabbitMQ
	if viper.GetString("rabbitmq_host") != "" {
		queue = &RabbitMQ{
			Host:            viper.GetString("rabbitmq_host"),
			Port:            viper.GetInt("rabbitmq_port"),
			User:            viper.GetString("rabbitmq_user"),
			Pass:            viper.GetString("rabbitmq_pass"),
			Kind:            viper.GetString("rabbitmq_kind"),
			ControlExchange: viper.GetString("rabbitmq_control_exchange"),
			ControlQueue:    viper.GetString("rabbitmq_control_queue"),
			EventExchange:   viper.GetString("rabbitmq_event_exchange"),
		}
	}

	var storage *minio.Client
	if viper.GetString("minio.url") != "" {
		storage, err = minio.New(viper.GetString("minio.url"), &minio.Options{
			Creds:  credentials.NewStaticV4(viper.GetString("minio.access_id"), viper.GetString("minio.secret_access_key"), ""),
			Secure: false,
		})
		if err != nil {
			return nil, err
		}
	}

	return &Config{
		App: App{
			Environment: viper.GetString("app.environment"),
		},
		Server: Server{
			HttpPort: viper.GetString("server.port"),
		},
		Upload: Upload{
			Endpoint:      viper.GetString("upload.endpoint"),
			Token:         viper.GetString("upload.token"),
			SweepInterval: viper.GetDuration("upload.sweep_interval"),
		},
		Edge: Edge{
			Generation:   viper.GetString("edge.generation"),
			AppOrigin:    viper.GetString("edge.app_origin"),
			ShellURL:     viper.GetString("edge.shell_url"),
			ShellAssets:  viper.GetStringSlice("edge.shell_assets"),
			AllowedHosts: viper.GetStringSlice("edge.allowed_hosts"),
			APIPrefixes:  viper.GetStringSlice("edge.api_prefixes"),
		},
		ArchiveBucket: viper.GetString("minio.bucket"),
		DB:            db,
		Queue:         queue,
		Storage:       storage,
	}, nil
}
