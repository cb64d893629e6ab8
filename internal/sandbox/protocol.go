// Package sandbox runs user-submitted scripts in a dedicated child process
// with a reconstructed environment and a hard wall-clock timeout.
package sandbox

import (
	"encoding/json"
	"time"

	"opsgate/internal/domain"
)

// Config is the execution configuration handed to the child as a single argv
// JSON blob. It is never passed through the environment, so the child cannot
// see host secrets even though the host process has them.
type Config struct {
	DatabaseType domain.InstanceType `json:"databaseType"`
	DatabaseName string              `json:"databaseName"`
	Script       string              `json:"script"`
	TimeoutMs    int64               `json:"timeoutMs,omitempty"`

	// Postgres coordinates.
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	// Mongo coordinates.
	MongoURI string `json:"mongoUri,omitempty"`
}

// Timeout returns the configured timeout, or zero when unset.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// Result is the single JSON blob the child writes to stdout before exiting.
type Result struct {
	Success bool          `json:"success"`
	Result  interface{}   `json:"result,omitempty"`
	Logs    []interface{} `json:"logs,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// ParseResult decodes a child's stdout into a Result. Returns false when the
// output is not the JSON protocol, in which case the caller falls back to
// exit-code interpretation.
func ParseResult(stdout []byte) (*Result, bool) {
	var res Result
	if err := json.Unmarshal(stdout, &res); err != nil {
		return nil, false
	}
	return &res, true
}
