package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/fundkeeper/internal/flagx"
	"github.com/dmitrijs2005/fundkeeper/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk shape of the configuration. Empty values keep
// whatever the previous layer set, so a file may contain only overrides.
type FileConfig struct {
	EndpointAddrHTTP            string         `json:"endpoint_addr_http" yaml:"endpoint_addr_http"`
	DatabaseDriver              string         `json:"database_driver" yaml:"database_driver"`
	DatabaseDSN                 string         `json:"database_dsn" yaml:"database_dsn"`
	SecretKey                   string         `json:"secret_key" yaml:"secret_key"`
	AccessTokenValidityDuration timex.Duration `json:"access_token_validity_duration" yaml:"access_token_validity_duration"`
	RequestTimeout              timex.Duration `json:"request_timeout" yaml:"request_timeout"`
	LogLevel                    string         `json:"log_level" yaml:"log_level"`
	CoverMaxWidth               int            `json:"cover_max_width" yaml:"cover_max_width"`
	QRMaxWidth                  int            `json:"qr_max_width" yaml:"qr_max_width"`
	MaxArtifactBytes            *int           `json:"max_artifact_bytes" yaml:"max_artifact_bytes"`
	MaxSourcePixels             int64          `json:"max_source_pixels" yaml:"max_source_pixels"`
	RepairOnRead                *bool          `json:"repair_on_read" yaml:"repair_on_read"`
	ArchiveOriginals            *bool          `json:"archive_originals" yaml:"archive_originals"`
	S3RootUser                  string         `json:"s3_root_user" yaml:"s3_root_user"`
	S3RootPassword              string         `json:"s3_root_password" yaml:"s3_root_password"`
	S3Bucket                    string         `json:"s3_bucket" yaml:"s3_bucket"`
	S3Region                    string         `json:"s3_region" yaml:"s3_region"`
	S3BaseEndpoint              string         `json:"s3_base_endpoint" yaml:"s3_base_endpoint"`
}

// parseFile applies the file named by -c/-config, if any. Read or decode
// failures panic.
func parseFile(cfg *Config) {
	path := flagx.ConfigFileFlag()
	if path == "" {
		return
	}
	if err := ApplyFile(cfg, path); err != nil {
		panic(err)
	}
}

// ApplyFile overlays the JSON or YAML file at path onto cfg. The format is
// chosen by extension; anything that is not .yaml/.yml is read as JSON.
func ApplyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	fc := &FileConfig{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, fc)
	default:
		err = json.Unmarshal(data, fc)
	}
	if err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}

	fc.apply(cfg)
	return nil
}

func (fc *FileConfig) apply(cfg *Config) {
	setString(&cfg.EndpointAddrHTTP, fc.EndpointAddrHTTP)
	setString(&cfg.DatabaseDriver, fc.DatabaseDriver)
	setString(&cfg.DatabaseDSN, fc.DatabaseDSN)
	setString(&cfg.SecretKey, fc.SecretKey)
	setString(&cfg.LogLevel, fc.LogLevel)
	setString(&cfg.S3RootUser, fc.S3RootUser)
	setString(&cfg.S3RootPassword, fc.S3RootPassword)
	setString(&cfg.S3Bucket, fc.S3Bucket)
	setString(&cfg.S3Region, fc.S3Region)
	setString(&cfg.S3BaseEndpoint, fc.S3BaseEndpoint)

	if fc.AccessTokenValidityDuration.Duration > 0 {
		cfg.AccessTokenValidityDuration = fc.AccessTokenValidityDuration.Duration
	}
	if fc.RequestTimeout.Duration > 0 {
		cfg.RequestTimeout = fc.RequestTimeout.Duration
	}
	if fc.CoverMaxWidth > 0 {
		cfg.CoverMaxWidth = fc.CoverMaxWidth
	}
	if fc.QRMaxWidth > 0 {
		cfg.QRMaxWidth = fc.QRMaxWidth
	}
	if fc.MaxArtifactBytes != nil {
		cfg.MaxArtifactBytes = *fc.MaxArtifactBytes
	}
	if fc.MaxSourcePixels > 0 {
		cfg.MaxSourcePixels = fc.MaxSourcePixels
	}
	if fc.RepairOnRead != nil {
		cfg.RepairOnRead = *fc.RepairOnRead
	}
	if fc.ArchiveOriginals != nil {
		cfg.ArchiveOriginals = *fc.ArchiveOriginals
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
