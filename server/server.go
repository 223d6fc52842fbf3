package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/RyanBlaney/beatwizard/features"
	"github.com/RyanBlaney/beatwizard/logging"
	"github.com/RyanBlaney/beatwizard/storage"
	"github.com/RyanBlaney/beatwizard/transcode"
)

// ServerConfig holds HTTP server configuration. RequestTimeout is a
// duration string such as "5m" in JSON.
type ServerConfig struct {
	Addr           string        `json:"addr"`
	MaxUploadSize  int64         `json:"max_upload_size"`
	AllowedOrigins []string      `json:"allowed_origins"`
	RequestTimeout time.Duration `json:"request_timeout"`
	LogRequests    bool          `json:"log_requests"`
}

// DefaultServerConfig returns the default server configuration
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Addr:           ":8000",
		MaxUploadSize:  100 << 20,
		AllowedOrigins: []string{"*"},
		RequestTimeout: 5 * time.Minute,
		LogRequests:    true,
	}
}

// MarshalJSON writes the request timeout as a duration string
func (c ServerConfig) MarshalJSON() ([]byte, error) {
	type plain ServerConfig
	return json.Marshal(struct {
		plain
		RequestTimeout string `json:"request_timeout"`
	}{plain(c), c.RequestTimeout.String()})
}

// UnmarshalJSON reads the request timeout as a string or nanosecond count
func (c *ServerConfig) UnmarshalJSON(data []byte) error {
	type plain ServerConfig
	aux := struct {
		*plain
		RequestTimeout json.RawMessage `json:"request_timeout"`
	}{plain: (*plain)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	timeout, err := transcode.UnmarshalDuration(aux.RequestTimeout, c.RequestTimeout)
	if err != nil {
		return fmt.Errorf("request_timeout: %w", err)
	}
	c.RequestTimeout = timeout
	return nil
}

// Validate checks the server configuration
func (c *ServerConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("server addr is required")
	}
	if c.MaxUploadSize <= 0 {
		return fmt.Errorf("max upload size must be positive, got %d", c.MaxUploadSize)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request timeout must not be negative")
	}
	return nil
}

// Analyzer decodes and analyzes uploaded audio
type Analyzer interface {
	AnalyzeBytes(ctx context.Context, data []byte) (*features.Analysis, error)
}

// BeatStore persists analyzed beats
type BeatStore interface {
	Store(ctx context.Context, meta storage.BeatMetadata, fv *features.FeatureVector) (string, error)
	Get(ctx context.Context, id string) (*storage.Beat, error)
	List(ctx context.Context, limit, offset int) ([]storage.Beat, error)
	Delete(ctx context.Context, id string) error
	FetchSimilar(ctx context.Context, id string, limit int) ([]storage.SimilarBeat, error)
}

// Server encapsulates the HTTP server and its dependencies
type Server struct {
	analyzer Analyzer
	store    BeatStore
	config   *ServerConfig
	logger   logging.Logger
}

// NewServer creates a new server instance. A nil store disables the /beats
// endpoints.
func NewServer(analyzer Analyzer, store BeatStore, config *ServerConfig) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}
	return &Server{
		analyzer: analyzer,
		store:    store,
		config:   config,
		logger: logging.WithFields(logging.Fields{
			"component": "http_server",
		}),
	}
}

// Start serves HTTP until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("BeatWizard server starting", logging.Fields{
		"addr":            s.config.Addr,
		"max_upload_size": s.config.MaxUploadSize,
		"storage":         s.store != nil,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("Shutting down server")
		return srv.Shutdown(shutdownCtx)
	}
}
