package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
)

// configTemplate is the commented starter file written by InitConfig.
const configTemplate = `# docmirror Configuration File
#
# Every value can be overridden by an environment variable named after its
# path with a DOCMIRROR_ prefix, e.g. DOCMIRROR_STORE_BUCKET=docs.

logging:
  # DEBUG, INFO, WARN, ERROR
  level: {{ .Logging.Level }}
  # text or json
  format: {{ .Logging.Format }}
  # stdout, stderr, or a file path
  output: {{ .Logging.Output }}

server:
  host: ""
  port: {{ .Server.Port }}
  shutdown_timeout: {{ .Server.ShutdownTimeout }}
  # Largest accepted archive upload in bytes
  max_upload_bytes: {{ .Server.MaxUploadBytes }}
  # Per-client limit on admin routes; 0 disables
  rate_limit:
    requests_per_second: {{ .RateLimit }}
    burst: {{ .RateLimitBurst }}

# Administrator account for /api/admin routes
auth:
  username: admin
  password: change-me

store:
  # s3 or memory
  type: {{ .Store.Type }}
  bucket: docs
  s3:
    region: us-east-1
    # Custom endpoint for MinIO, Localstack, etc.
    # endpoint: http://localhost:9000
    # path_style: true
    # access_key_id: ""
    # secret_access_key: ""
    # Total attempts per request
    max_retries: {{ .S3MaxRetries }}
  memory:
    # Local directory loaded into the bucket at startup
    # seed_dir: ./seed

storage:
  # Served content tree
  local_dir: {{ .Storage.LocalDir }}
  # Uploads and backups; must not be inside local_dir
  temp_dir: {{ .Storage.TempDir }}
  # Delete leftover uploads and backups older than this; 0s keeps them
  artifact_max_age: 0s
  sweep_interval: {{ .Storage.SweepInterval }}

sync:
  concurrency: {{ .Sync.Concurrency }}
  fetch_timeout: {{ .Sync.FetchTimeout }}
  # Periodic clean download; 0s disables
  refresh_interval: 0s

journal:
  enabled: false
  path: {{ .Journal.Path }}
  retain: {{ .Journal.Retain }}

metrics:
  enabled: false
  port: {{ .Metrics.Port }}
`

// templateData feeds configTemplate.
type templateData struct {
	*Config
	RateLimit      float64
	RateLimitBurst int
	S3MaxRetries   int
}

// InitConfig writes a starter configuration file to the default location.
//
// Returns the path written, or an error if a file already exists and force
// is false.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a starter configuration file to path, creating
// parent directories as needed.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	content, err := renderConfigTemplate()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// The file holds credentials
	if err := os.WriteFile(path, content, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func renderConfigTemplate() ([]byte, error) {
	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config template: %w", err)
	}

	data := templateData{
		Config:         GetDefaultConfig(),
		RateLimit:      DefaultRateLimit,
		RateLimitBurst: DefaultRateLimitBurst,
		S3MaxRetries:   DefaultS3MaxRetries,
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render config template: %w", err)
	}
	return buf.Bytes(), nil
}
