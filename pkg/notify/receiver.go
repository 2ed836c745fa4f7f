package notify

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// ErrUnauthorized is returned when a push request fails the VAPID check.
var ErrUnauthorized = errors.New("push request not authorized")

// ReceiverConfig holds push receiver configuration.
type ReceiverConfig struct {
	// VAPIDPublicKey is the application server key (base64url, uncompressed
	// P-256 point). Pushes are accepted unauthenticated when empty.
	VAPIDPublicKey string

	// Audience is the expected "aud" claim (not checked when empty)
	Audience string

	// MaxBodyBytes limits the push payload size
	MaxBodyBytes int64
}

// DefaultReceiverConfig returns the default receiver configuration.
func DefaultReceiverConfig() ReceiverConfig {
	return ReceiverConfig{MaxBodyBytes: 4096}
}

// Receiver is an http.Handler accepting pushed payloads from the origin.
type Receiver struct {
	handler *Handler
	config  ReceiverConfig
	key     *ecdsa.PublicKey
	logger  zerolog.Logger
}

// NewReceiver creates a receiver delivering to h.
func NewReceiver(h *Handler, cfg ReceiverConfig, logger zerolog.Logger) (*Receiver, error) {
	if h == nil {
		return nil, fmt.Errorf("handler is required")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultReceiverConfig().MaxBodyBytes
	}

	r := &Receiver{
		handler: h,
		config:  cfg,
		logger:  logger.With().Str("component", "push-receiver").Logger(),
	}

	if cfg.VAPIDPublicKey != "" {
		key, err := DecodePublicKey(cfg.VAPIDPublicKey)
		if err != nil {
			return nil, fmt.Errorf("vapid public key: %w", err)
		}
		r.key = key
	}
	return r, nil
}

// DecodePublicKey parses a base64url uncompressed P-256 public key.
func DecodePublicKey(s string) (*ecdsa.PublicKey, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if len(raw) != 65 || raw[0] != 0x04 {
		return nil, fmt.Errorf("expected 65-byte uncompressed point, got %d bytes", len(raw))
	}
	x, y := elliptic.Unmarshal(elliptic.P256(), raw)
	if x == nil {
		return nil, fmt.Errorf("point is not on P-256")
	}
	return &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}, nil
}

// ServeHTTP implements http.Handler.
func (r *Receiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.authorize(req.Header.Get("Authorization")); err != nil {
		r.logger.Warn().Err(err).Str("remote", req.RemoteAddr).Msg("Rejected push")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, r.config.MaxBodyBytes))
	if err != nil {
		http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
		return
	}

	n, err := r.handler.HandlePush(req.Context(), body)
	if err != nil {
		r.logger.Error().Err(err).Msg("Push delivery failed")
		http.Error(w, "delivery failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"id": n.ID})
}

// authorize checks a "vapid t=<jwt>, k=<key>" header against the configured key.
func (r *Receiver) authorize(header string) error {
	if r.key == nil {
		return nil
	}

	scheme, params := parseAuthorization(header)
	if !strings.EqualFold(scheme, "vapid") {
		return fmt.Errorf("%w: unexpected scheme %q", ErrUnauthorized, scheme)
	}
	if k := params["k"]; k != "" && strings.TrimRight(k, "=") != strings.TrimRight(r.config.VAPIDPublicKey, "=") {
		return fmt.Errorf("%w: unknown application server key", ErrUnauthorized)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if r.config.Audience != "" {
		opts = append(opts, jwt.WithAudience(r.config.Audience))
	}

	_, err := jwt.Parse(params["t"], func(*jwt.Token) (any, error) {
		return r.key, nil
	}, opts...)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	return nil
}

// parseAuthorization splits "scheme k1=v1, k2=v2".
func parseAuthorization(header string) (string, map[string]string) {
	params := map[string]string{}
	scheme, rest, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok {
		return scheme, params
	}
	for _, part := range strings.Split(rest, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		params[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return scheme, params
}
