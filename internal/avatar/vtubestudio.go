package avatar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/misa/internal/observability"
	"github.com/lexiqai/misa/internal/resilience"
)

const (
	apiName    = "VTubeStudioPublicAPI"
	apiVersion = "1.0"
	peerName   = "vtube_studio"

	defaultRequestTimeout = 5 * time.Second
	defaultRedialCooldown = 10 * time.Second
)

// ErrNotConnected is returned when no VTube Studio session is open
var ErrNotConnected = errors.New("vtube studio: not connected")

// APIError is an error reported by VTube Studio
type APIError struct {
	ID      int    `json:"errorID"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("vtube studio: error %d: %s", e.ID, e.Message)
}

// sendError marks a request that never reached VTube Studio
type sendError struct {
	err error
}

func (e *sendError) Error() string { return e.err.Error() }
func (e *sendError) Unwrap() error { return e.err }

type request struct {
	APIName     string `json:"apiName"`
	APIVersion  string `json:"apiVersion"`
	RequestID   string `json:"requestID"`
	MessageType string `json:"messageType"`
	Data        any    `json:"data,omitempty"`
}

type response struct {
	RequestID   string          `json:"requestID"`
	MessageType string          `json:"messageType"`
	Data        json.RawMessage `json:"data"`
}

// Hotkey is one hotkey of the loaded model
type Hotkey struct {
	Name string `json:"name"`
	Type string `json:"type"`
	ID   string `json:"hotkeyID"`
}

// VTSConfig configures the VTube Studio plugin connection
type VTSConfig struct {
	URL             string
	PluginName      string
	PluginDeveloper string
	TokenPath       string
	RequestTimeout  time.Duration
	Reconnect       *resilience.ReconnectConfig

	// Redial bounds the reconnect a dispatch makes after the session dropped
	Redial *resilience.ReconnectConfig

	// RedialCooldown is how long dispatches fail fast after a redial failed
	RedialCooldown time.Duration
}

// VTubeStudio implements Dispatcher over the VTube Studio public API
type VTubeStudio struct {
	cfg    VTSConfig
	dialer websocket.Dialer
	logger zerolog.Logger

	mu         sync.Mutex // serializes requests; the API answers in order
	conn       *websocket.Conn
	hotkeys    map[string]Hotkey
	closed     bool
	nextRedial time.Time
}

// NewVTubeStudio creates an unconnected client
func NewVTubeStudio(cfg VTSConfig) *VTubeStudio {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.Redial == nil {
		cfg.Redial = &resilience.ReconnectConfig{
			MaxAttempts: 2,
			Backoff:     250 * time.Millisecond,
			Multiplier:  2.0,
			MaxBackoff:  time.Second,
		}
	}
	if cfg.RedialCooldown <= 0 {
		cfg.RedialCooldown = defaultRedialCooldown
	}
	return &VTubeStudio{
		cfg:     cfg,
		dialer:  websocket.Dialer{HandshakeTimeout: cfg.RequestTimeout},
		logger:  observability.WithComponent("avatar"),
		hotkeys: map[string]Hotkey{},
	}
}

// Connect dials, authenticates and loads the model's hotkeys, retrying with backoff
func (v *VTubeStudio) Connect(ctx context.Context) error {
	return resilience.Reconnect(ctx, peerName, v.connectOnce, v.cfg.Reconnect)
}

func (v *VTubeStudio) connectOnce(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = false
	return v.connectLocked(ctx)
}

func (v *VTubeStudio) connectLocked(ctx context.Context) error {
	if v.conn != nil {
		v.conn.Close()
		v.conn = nil
	}

	conn, _, err := v.dialer.DialContext(ctx, v.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("vtube studio: failed to connect to %s: %w", v.cfg.URL, err)
	}
	v.conn = conn

	if err := v.authenticate(ctx); err != nil {
		v.closeLocked()
		return err
	}
	if err := v.loadHotkeys(ctx); err != nil {
		v.closeLocked()
		return err
	}

	v.logger.Info().
		Str("url", v.cfg.URL).
		Int("hotkeys", len(v.hotkeys)).
		Msg("Connected to VTube Studio")
	return nil
}

// authenticate uses the stored token, requesting a fresh one (which the
// user approves inside VTube Studio) when none is stored or it was revoked.
func (v *VTubeStudio) authenticate(ctx context.Context) error {
	token, err := v.readToken()
	if err != nil {
		return err
	}

	for attempt := 0; attempt < 2; attempt++ {
		if token == "" {
			if token, err = v.requestToken(ctx); err != nil {
				return err
			}
			if err := v.writeToken(token); err != nil {
				v.logger.Warn().Err(err).Msg("Failed to persist VTube Studio token")
			}
		}

		var out struct {
			Authenticated bool   `json:"authenticated"`
			Reason        string `json:"reason"`
		}
		err := v.call(ctx, "AuthenticationRequest", map[string]string{
			"pluginName":          v.cfg.PluginName,
			"pluginDeveloper":     v.cfg.PluginDeveloper,
			"authenticationToken": token,
		}, &out)
		if err != nil {
			return err
		}
		if out.Authenticated {
			return nil
		}

		v.logger.Warn().Str("reason", out.Reason).Msg("VTube Studio rejected token, requesting a new one")
		token = ""
	}
	return fmt.Errorf("vtube studio: authentication failed")
}

func (v *VTubeStudio) requestToken(ctx context.Context) (string, error) {
	var out struct {
		Token string `json:"authenticationToken"`
	}
	err := v.call(ctx, "AuthenticationTokenRequest", map[string]string{
		"pluginName":      v.cfg.PluginName,
		"pluginDeveloper": v.cfg.PluginDeveloper,
	}, &out)
	if err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", fmt.Errorf("vtube studio: empty authentication token")
	}
	return out.Token, nil
}

func (v *VTubeStudio) readToken() (string, error) {
	if v.cfg.TokenPath == "" {
		return "", nil
	}
	data, err := os.ReadFile(v.cfg.TokenPath)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("vtube studio: failed to read token: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (v *VTubeStudio) writeToken(token string) error {
	if v.cfg.TokenPath == "" {
		return nil
	}
	return os.WriteFile(v.cfg.TokenPath, []byte(token), 0o600)
}

func (v *VTubeStudio) loadHotkeys(ctx context.Context) error {
	var out struct {
		ModelLoaded bool     `json:"modelLoaded"`
		ModelName   string   `json:"modelName"`
		Hotkeys     []Hotkey `json:"availableHotkeys"`
	}
	if err := v.call(ctx, "HotkeysInCurrentModelRequest", nil, &out); err != nil {
		return err
	}

	v.hotkeys = make(map[string]Hotkey, len(out.Hotkeys))
	for _, hk := range out.Hotkeys {
		v.hotkeys[strings.ToLower(hk.Name)] = hk
	}
	if !out.ModelLoaded {
		v.logger.Warn().Msg("No model loaded in VTube Studio")
	}
	return nil
}

// Hotkeys returns the hotkey names cached at connect time
func (v *VTubeStudio) Hotkeys() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	names := make([]string, 0, len(v.hotkeys))
	for _, hk := range v.hotkeys {
		names = append(names, hk.Name)
	}
	return names
}

// TriggerExpression fires a hotkey by name. An empty name clears expressions.
// Unknown names are sent as-is; VTube Studio also accepts raw hotkey IDs.
//
// A dropped session is redialed on the next dispatch. After a failed redial,
// dispatches return ErrNotConnected until RedialCooldown has passed.
func (v *VTubeStudio) TriggerExpression(ctx context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		name = ClearExpression
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.redialLocked(ctx); err != nil {
		return err
	}

	err := v.triggerLocked(ctx, name)
	var sendErr *sendError
	if errors.As(err, &sendErr) && ctx.Err() == nil {
		// Nothing reached VTube Studio, so sending again cannot double-toggle
		v.closeLocked()
		if rerr := v.redialLocked(ctx); rerr != nil {
			return rerr
		}
		err = v.triggerLocked(ctx, name)
	}

	var apiErr *APIError
	if err != nil && !errors.As(err, &apiErr) {
		// Transport failure: drop the connection so the next dispatch redials
		v.closeLocked()
	}
	return err
}

func (v *VTubeStudio) triggerLocked(ctx context.Context, name string) error {
	id := name
	if hk, ok := v.hotkeys[strings.ToLower(name)]; ok && hk.ID != "" {
		id = hk.ID
	}
	return v.call(ctx, "HotkeyTriggerRequest", map[string]string{"hotkeyID": id}, nil)
}

// redialLocked reopens a dropped session. Caller holds v.mu.
func (v *VTubeStudio) redialLocked(ctx context.Context) error {
	if v.conn != nil {
		return nil
	}
	if v.closed || time.Now().Before(v.nextRedial) {
		return ErrNotConnected
	}

	if err := resilience.Reconnect(ctx, peerName, v.connectLocked, v.cfg.Redial); err != nil {
		v.nextRedial = time.Now().Add(v.cfg.RedialCooldown)
		v.logger.Warn().Err(err).Dur("cooldown", v.cfg.RedialCooldown).Msg("VTube Studio redial failed")
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	return nil
}

// call sends one request and waits for its response. Caller holds v.mu.
func (v *VTubeStudio) call(ctx context.Context, messageType string, data any, out any) error {
	if v.conn == nil {
		return ErrNotConnected
	}

	deadline := time.Now().Add(v.cfg.RequestTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	v.conn.SetWriteDeadline(deadline)
	v.conn.SetReadDeadline(deadline)

	req := request{
		APIName:     apiName,
		APIVersion:  apiVersion,
		RequestID:   uuid.New().String(),
		MessageType: messageType,
		Data:        data,
	}
	if err := v.conn.WriteJSON(req); err != nil {
		return &sendError{err: fmt.Errorf("vtube studio: failed to send %s: %w", messageType, err)}
	}

	for {
		var resp response
		if err := v.conn.ReadJSON(&resp); err != nil {
			return fmt.Errorf("vtube studio: failed to read %s response: %w", messageType, err)
		}
		if resp.RequestID != req.RequestID {
			// Event or stale response
			continue
		}
		if resp.MessageType == "APIError" {
			apiErr := &APIError{}
			if err := json.Unmarshal(resp.Data, apiErr); err != nil {
				return fmt.Errorf("vtube studio: malformed error: %w", err)
			}
			return apiErr
		}
		if out == nil || len(resp.Data) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.Data, out); err != nil {
			return fmt.Errorf("vtube studio: malformed %s: %w", resp.MessageType, err)
		}
		return nil
	}
}

// HealthCheck reports whether the plugin session is open
func (v *VTubeStudio) HealthCheck(ctx context.Context) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.conn == nil {
		return false, ErrNotConnected
	}
	return true, nil
}

func (v *VTubeStudio) closeLocked() {
	if v.conn != nil {
		v.conn.Close()
		v.conn = nil
	}
}

// Close closes the connection; later dispatches do not redial
func (v *VTubeStudio) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	if v.conn == nil {
		return nil
	}
	err := v.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	v.closeLocked()
	return err
}
