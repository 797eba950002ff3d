package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/dmitrijs2005/gophaudio/internal/flagx"
	"github.com/dmitrijs2005/gophaudio/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig mirrors Config for decoding config files. Durations use
// timex.Duration so they can be written as "30m" or as nanoseconds.
//
// The format is picked from the file extension: .toml, .yaml/.yml, anything
// else is read as JSON.
type FileConfig struct {
	EndpointAddrHTTP            string         `json:"endpoint_addr_http" toml:"endpoint_addr_http" yaml:"endpoint_addr_http"`
	EndpointAddrGRPC            string         `json:"endpoint_addr_grpc" toml:"endpoint_addr_grpc" yaml:"endpoint_addr_grpc"`
	PublicBaseURL               string         `json:"public_base_url" toml:"public_base_url" yaml:"public_base_url"`
	DatabaseDSN                 string         `json:"database_dsn" toml:"database_dsn" yaml:"database_dsn"`
	SecretKey                   string         `json:"secret_key" toml:"secret_key" yaml:"secret_key"`
	AccessTokenValidityDuration timex.Duration `json:"access_token_validity_duration" toml:"access_token_validity_duration" yaml:"access_token_validity_duration"`
	BcryptCost                  int            `json:"bcrypt_cost" toml:"bcrypt_cost" yaml:"bcrypt_cost"`
	StorageBackend              string         `json:"storage_backend" toml:"storage_backend" yaml:"storage_backend"`
	StorageDir                  string         `json:"storage_dir" toml:"storage_dir" yaml:"storage_dir"`
	TempDir                     string         `json:"temp_dir" toml:"temp_dir" yaml:"temp_dir"`
	S3RootUser                  string         `json:"s3_root_user" toml:"s3_root_user" yaml:"s3_root_user"`
	S3RootPassword              string         `json:"s3_root_password" toml:"s3_root_password" yaml:"s3_root_password"`
	S3Bucket                    string         `json:"s3_bucket" toml:"s3_bucket" yaml:"s3_bucket"`
	S3Region                    string         `json:"s3_region" toml:"s3_region" yaml:"s3_region"`
	S3BaseEndpoint              string         `json:"s3_base_endpoint" toml:"s3_base_endpoint" yaml:"s3_base_endpoint"`
	TTSBaseURL                  string         `json:"tts_base_url" toml:"tts_base_url" yaml:"tts_base_url"`
	FFmpegPath                  string         `json:"ffmpeg_path" toml:"ffmpeg_path" yaml:"ffmpeg_path"`
	FFprobePath                 string         `json:"ffprobe_path" toml:"ffprobe_path" yaml:"ffprobe_path"`
	ConversionTimeout           timex.Duration `json:"conversion_timeout" toml:"conversion_timeout" yaml:"conversion_timeout"`
	MaxTextLength               int            `json:"max_text_length" toml:"max_text_length" yaml:"max_text_length"`
	MaxUploadSize               int64          `json:"max_upload_size" toml:"max_upload_size" yaml:"max_upload_size"`
	RetentionMaxAge             timex.Duration `json:"retention_max_age" toml:"retention_max_age" yaml:"retention_max_age"`
	RetentionInterval           timex.Duration `json:"retention_interval" toml:"retention_interval" yaml:"retention_interval"`
	RedisURL                    string         `json:"redis_url" toml:"redis_url" yaml:"redis_url"`
	RateLimitRPS                int            `json:"rate_limit_rps" toml:"rate_limit_rps" yaml:"rate_limit_rps"`
	RateLimitBurst              int            `json:"rate_limit_burst" toml:"rate_limit_burst" yaml:"rate_limit_burst"`
	CORSAllowedOrigins          []string       `json:"cors_allowed_origins" toml:"cors_allowed_origins" yaml:"cors_allowed_origins"`
	LogLevel                    string         `json:"log_level" toml:"log_level" yaml:"log_level"`
	LogFormat                   string         `json:"log_format" toml:"log_format" yaml:"log_format"`
	ShutdownTimeout             timex.Duration `json:"shutdown_timeout" toml:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// parseFile overlays values from the file named by -c/-config, if any.
// Only keys present (non-zero) in the file replace the current values.
func parseFile(cfg *Config, args []string) error {
	path := flagx.ConfigFileFlag(args)
	if path == "" {
		return nil
	}

	fc, err := readFile(path)
	if err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}
	fc.apply(cfg)
	return nil
}

func readFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	fc := &FileConfig{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, fc)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, fc)
	default:
		err = json.Unmarshal(data, fc)
	}
	if err != nil {
		return nil, err
	}
	return fc, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setNumber[T int | int64](dst *T, v T) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}

func (fc *FileConfig) apply(c *Config) {
	setString(&c.EndpointAddrHTTP, fc.EndpointAddrHTTP)
	setString(&c.EndpointAddrGRPC, fc.EndpointAddrGRPC)
	setString(&c.PublicBaseURL, fc.PublicBaseURL)
	setString(&c.DatabaseDSN, fc.DatabaseDSN)
	setString(&c.SecretKey, fc.SecretKey)
	setDuration(&c.AccessTokenValidityDuration, fc.AccessTokenValidityDuration)
	setNumber(&c.BcryptCost, fc.BcryptCost)
	setString(&c.StorageBackend, fc.StorageBackend)
	setString(&c.StorageDir, fc.StorageDir)
	setString(&c.TempDir, fc.TempDir)
	setString(&c.S3RootUser, fc.S3RootUser)
	setString(&c.S3RootPassword, fc.S3RootPassword)
	setString(&c.S3Bucket, fc.S3Bucket)
	setString(&c.S3Region, fc.S3Region)
	setString(&c.S3BaseEndpoint, fc.S3BaseEndpoint)
	setString(&c.TTSBaseURL, fc.TTSBaseURL)
	setString(&c.FFmpegPath, fc.FFmpegPath)
	setString(&c.FFprobePath, fc.FFprobePath)
	setDuration(&c.ConversionTimeout, fc.ConversionTimeout)
	setNumber(&c.MaxTextLength, fc.MaxTextLength)
	setNumber(&c.MaxUploadSize, fc.MaxUploadSize)
	setDuration(&c.RetentionMaxAge, fc.RetentionMaxAge)
	setDuration(&c.RetentionInterval, fc.RetentionInterval)
	setString(&c.RedisURL, fc.RedisURL)
	setNumber(&c.RateLimitRPS, fc.RateLimitRPS)
	setNumber(&c.RateLimitBurst, fc.RateLimitBurst)
	if len(fc.CORSAllowedOrigins) > 0 {
		c.CORSAllowedOrigins = fc.CORSAllowedOrigins
	}
	setString(&c.LogLevel, fc.LogLevel)
	setString(&c.LogFormat, fc.LogFormat)
	setDuration(&c.ShutdownTimeout, fc.ShutdownTimeout)
}
