package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		AppName          string
		Env              string // DEV (local; default), TEST, QA, PROD
		Build            string
		Debug            bool
		TestMode         bool
		SecretKey        string
		FrontendBaseURL  string
		SendgridApiKey   string
		RollbarToken     string
		PhoneRegion      string // ISO 3166-1 region assumed for phone numbers without a "+" prefix
		defaultFromEmail string

		Server    ServerConfig
		Auth      AuthConfig
		Lecture   LectureConfig
		RateLimit RateLimitConfig
		Database  DatabaseConfig
	}

	ServerConfig struct {
		Host            string
		Address         string
		DebugHost       string
		ShutdownTimeout time.Duration
		ReadTimeout     time.Duration
		WriteTimeout    time.Duration
		DisableReqLogs  bool
	}

	AuthConfig struct {
		SessionTTL      time.Duration
		RememberMeTTL   time.Duration
		SweepInterval   time.Duration
		VerificationTTL time.Duration
	}

	LectureConfig struct {
		CodeLength      int
		CodeMaxAttempts int
	}

	RateLimitConfig struct {
		JoinPerMinute int
		JoinBurst     int
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		MaxOpenConns  int
	}
)

// NewConfig reads the configuration from the environment (and an optional `config/.env.<env>` file).
func NewConfig() *Config {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	if wd, err := os.Getwd(); err == nil {
		dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
		if _, err := os.Stat(dotEnvPath); err == nil {
			if err := godotenv.Load(dotEnvPath); err != nil {
				log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
			}
		} else if !os.IsNotExist(err) {
			log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
		}
	}
	v.AutomaticEnv()

	return &Config{
		AppName:          v.GetString("appName"),
		Env:              env,
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		SecretKey:        v.GetString("secretKey"),
		FrontendBaseURL:  strings.TrimSuffix(v.GetString("frontendBaseURL"), "/"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		RollbarToken:     v.GetString("rollbarToken"),
		PhoneRegion:      strings.ToUpper(v.GetString("phoneRegion")),
		defaultFromEmail: v.GetString("defaultFromEmail"),
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			Address:         v.GetString("server.address"),
			DebugHost:       v.GetString("server.debugHost"),
			ShutdownTimeout: v.GetDuration("server.shutdownTimeout"),
			ReadTimeout:     v.GetDuration("server.readTimeout"),
			WriteTimeout:    v.GetDuration("server.writeTimeout"),
			DisableReqLogs:  v.GetBool("server.disableReqLogs"),
		},
		Auth: AuthConfig{
			SessionTTL:      v.GetDuration("auth.sessionTTL"),
			RememberMeTTL:   v.GetDuration("auth.rememberMeTTL"),
			SweepInterval:   v.GetDuration("auth.sweepInterval"),
			VerificationTTL: v.GetDuration("auth.verificationTTL"),
		},
		Lecture: LectureConfig{
			CodeLength:      v.GetInt("lecture.codeLength"),
			CodeMaxAttempts: v.GetInt("lecture.codeMaxAttempts"),
		},
		RateLimit: RateLimitConfig{
			JoinPerMinute: v.GetInt("rateLimit.joinPerMinute"),
			JoinBurst:     v.GetInt("rateLimit.joinBurst"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
			MaxOpenConns:  v.GetInt("database.maxOpenConns"),
		},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)

	v.SetDefault("appName", "Gatheria")
	v.SetDefault("build", "dev")
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("secretKey", "k8#m2x!fq0-lz7r$w9^p3v&c1n*d6g(e5h)t4b+yj_a")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "Gatheria <noreply@localhost>")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("phoneRegion", "KR")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.readTimeout", 5*time.Second)
	v.SetDefault("server.writeTimeout", 5*time.Second)
	v.SetDefault("server.disableReqLogs", false)

	v.SetDefault("auth.sessionTTL", 24*time.Hour)
	v.SetDefault("auth.rememberMeTTL", 30*24*time.Hour)
	v.SetDefault("auth.sweepInterval", 10*time.Minute)
	v.SetDefault("auth.verificationTTL", 3*24*time.Hour)

	v.SetDefault("lecture.codeLength", 6)
	v.SetDefault("lecture.codeMaxAttempts", 10)

	v.SetDefault("rateLimit.joinPerMinute", 20)
	v.SetDefault("rateLimit.joinBurst", 5)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "gatheria")
	v.SetDefault("database.user", "gatheria")
	v.SetDefault("database.password", "gatheria")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)
	v.SetDefault("database.maxOpenConns", 0)
}

// DefaultFromEmail parses the configured sender; an invalid value falls back to a bare noreply address.
func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: "noreply@localhost"}
	}
	return *addr
}

func (dc DatabaseConfig) Address() string {
	return net.JoinHostPort(dc.Host, strconv.Itoa(dc.Port))
}

// NewTestConfig returns the configuration used by tests: DEV defaults with test mode on.
func NewTestConfig() *Config {
	conf := NewConfig()
	conf.Env = "TEST"
	conf.TestMode = true
	conf.Debug = false
	conf.Server.DisableReqLogs = true
	return conf
}
