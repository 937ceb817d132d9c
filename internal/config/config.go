package config

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	log "github.com/sirupsen/logrus"
)

const envPrefix = "CAMPUSFLOW_"

type Application struct {
	Host      string    `koanf:"host"`
	Port      int       `koanf:"port"`
	Database  Database  `koanf:"db"`
	Google    Google    `koanf:"google"`
	Apple     Apple     `koanf:"apple"`
	Sync      Sync      `koanf:"sync"`
	Scheduler Scheduler `koanf:"scheduler"`
	Secrets   Secrets   `koanf:"secrets"`
}

type Database struct {
	Host   string `koanf:"host"`
	Port   int    `koanf:"port"`
	User   string `koanf:"user"`
	Pass   string `koanf:"pass"`
	Name   string `koanf:"name"`
	Schema string `koanf:"schema"`
}

type Google struct {
	ClientId     string `koanf:"clientid"`
	ClientSecret string `koanf:"clientsecret"`
	// Endpoint overrides the Calendar API base URL. Empty means the public API.
	Endpoint       string        `koanf:"endpoint"`
	RevokeURL      string        `koanf:"revokeurl"`
	RequestTimeout time.Duration `koanf:"requesttimeout"`
}

type Apple struct {
	RequestTimeout time.Duration `koanf:"requesttimeout"`
}

type Sync struct {
	// Timezone is the single user timezone all calendar dates are resolved in.
	Timezone             string        `koanf:"timezone"`
	DefaultEventDuration time.Duration `koanf:"defaulteventduration"`
	PullWindowPastDays   int           `koanf:"pullwindowpastdays"`
	PullWindowFutureDays int           `koanf:"pullwindowfuturedays"`
	RetryAttempts        int           `koanf:"retryattempts"`
	RetryInitialInterval time.Duration `koanf:"retryinitialinterval"`
	RetryMaxInterval     time.Duration `koanf:"retrymaxinterval"`
	OperationTimeout     time.Duration `koanf:"operationtimeout"`
}

type Scheduler struct {
	Enabled  bool   `koanf:"enabled"`
	Hourly   string `koanf:"hourly"`
	Daily    string `koanf:"daily"`
	Realtime bool   `koanf:"realtime"`
}

type Secrets struct {
	// Key is a base64 encoded 32 byte key used to seal provider credentials.
	Key string `koanf:"key"`
}

func Defaults() Application {
	return Application{
		Host: "http://localhost:8181",
		Port: 8181,
		Database: Database{
			Host:   "localhost",
			Port:   5432,
			User:   "campusflow",
			Pass:   "",
			Name:   "campusflow",
			Schema: "campusflow",
		},
		Google: Google{
			RevokeURL:      "https://oauth2.googleapis.com/revoke",
			RequestTimeout: 30 * time.Second,
		},
		Apple: Apple{
			RequestTimeout: 20 * time.Second,
		},
		Sync: Sync{
			Timezone:             "UTC",
			DefaultEventDuration: time.Hour,
			PullWindowPastDays:   30,
			PullWindowFutureDays: 180,
			RetryAttempts:        3,
			RetryInitialInterval: 500 * time.Millisecond,
			RetryMaxInterval:     5 * time.Second,
			OperationTimeout:     2 * time.Minute,
		},
		Scheduler: Scheduler{
			Enabled:  false,
			Hourly:   "@hourly",
			Daily:    "@daily",
			Realtime: true,
		},
	}
}

func Load(path string) (Application, error) {
	var k = koanf.New(".")

	err := k.Load(structs.Provider(Defaults(), "koanf"), nil)
	if err != nil {
		log.Errorf("error loading config from structs: %v", err)
		return Application{}, err
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if os.IsNotExist(err) {
			log.Infof("Config file not found at %s, using defaults and environment variables", path)
		} else {
			log.Errorf("error loading config from YAML: %v", err)
			return Application{}, err
		}
	} else {
		log.Infof("Loaded configuration from file: %s", path)
	}

	err = k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(k, v string) (string, any) {
			k = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(k, envPrefix)), "_", ".")
			return k, v
		},
	}), nil)
	if err != nil {
		log.Errorf("error loading config from envs: %v", err)
		return Application{}, err
	}

	var app Application
	if err := k.Unmarshal("", &app); err != nil {
		return Application{}, err
	}

	return app, nil
}
