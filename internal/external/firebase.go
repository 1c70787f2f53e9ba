package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"gaswatch/internal/types"
)

// FirebaseStore reads and writes sensor readings in a Firebase Realtime
// Database through its REST interface. It implements types.ReadingStore.
type FirebaseStore struct {
	base   *BaseClient
	dbURL  string
	path   string
	secret string
	logger *slog.Logger
}

// FirebaseConfig configures a FirebaseStore.
type FirebaseConfig struct {
	DatabaseURL string
	// Path is the node holding readings, e.g. "sensor_data".
	Path string
	// AuthSecret is the legacy database secret or an ID token. Optional.
	AuthSecret string
	Client     *BaseClient
	Logger     *slog.Logger
}

// NewFirebaseStore creates a FirebaseStore.
func NewFirebaseStore(cfg FirebaseConfig) *FirebaseStore {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Client == nil {
		cfg.Client = NewBaseClient(nil, "firebase", DefaultRetryPolicy(), "", WithLogger(cfg.Logger))
	}
	return &FirebaseStore{
		base:   cfg.Client,
		dbURL:  strings.TrimRight(cfg.DatabaseURL, "/"),
		path:   strings.Trim(cfg.Path, "/"),
		secret: cfg.AuthSecret,
		logger: cfg.Logger,
	}
}

func (s *FirebaseStore) endpoint(query url.Values) string {
	segments := strings.Split(s.path, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	if query == nil {
		query = url.Values{}
	}
	if s.secret != "" {
		query.Set("auth", s.secret)
	}
	u := fmt.Sprintf("%s/%s.json", s.dbURL, strings.Join(segments, "/"))
	if enc := query.Encode(); enc != "" {
		u += "?" + enc
	}
	return u
}

// GetAll fetches every reading under the configured node. An absent node
// yields an empty map. Children that are not JSON objects are skipped.
func (s *FirebaseStore) GetAll(ctx context.Context) (map[string]types.Reading, error) {
	resp, err := s.base.DoJSON(ctx, http.MethodGet, s.endpoint(nil), nil)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	if err := CheckStatus(resp, types.ErrCodeUpstreamStore, "firebase"); err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamStore, "failed to read firebase response", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamStore, "firebase node is not an object", err)
	}

	out := make(map[string]types.Reading, len(raw))
	for key, msg := range raw {
		dec := json.NewDecoder(bytes.NewReader(msg))
		dec.UseNumber()
		var r types.Reading
		if err := dec.Decode(&r); err != nil || r == nil {
			s.logger.WarnContext(ctx, "skipping non-object reading", "key", key)
			continue
		}
		out[key] = r
	}
	return out, nil
}

// Put writes r under key, replacing any existing reading.
func (s *FirebaseStore) Put(ctx context.Context, key string, r types.Reading) error {
	if key == "" || strings.ContainsAny(key, ".$#[]/") {
		return types.NewAppError(types.ErrCodeValidationInvalidJSON, fmt.Sprintf("invalid reading key %q", key), nil)
	}

	resp, err := s.base.DoJSON(ctx, http.MethodPatch, s.endpoint(nil), map[string]types.Reading{key: r})
	if err != nil {
		return wrapStoreErr(err)
	}
	if err := CheckStatus(resp, types.ErrCodeUpstreamStore, "firebase"); err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Ping checks that the database answers for the configured node without
// downloading it.
func (s *FirebaseStore) Ping(ctx context.Context) error {
	resp, err := s.base.DoJSON(ctx, http.MethodGet, s.endpoint(url.Values{"shallow": {"true"}}), nil)
	if err != nil {
		return wrapStoreErr(err)
	}
	if err := CheckStatus(resp, types.ErrCodeUpstreamStore, "firebase"); err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// wrapStoreErr re-codes transport failures so callers can tell store outages
// from other upstream problems.
func wrapStoreErr(err error) error {
	if appErr, ok := err.(*types.AppError); ok {
		return types.NewAppError(types.ErrCodeUpstreamStore, appErr.Message, appErr)
	}
	return types.NewAppError(types.ErrCodeUpstreamStore, "sensor store request failed", err)
}
