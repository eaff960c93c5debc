package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"
	"github.com/tinywideclouds/go-notification-relay/pkg/relay"
)

// Relay is the part of the relay facade exposed over HTTP.
type Relay interface {
	SendTag(ctx context.Context, key, value string) error
	SendTags(ctx context.Context, tags map[string]string) error
	GetTags(ctx context.Context, reply func(map[string]string)) error
	DeleteTag(ctx context.Context, key string) error
	SetSubscription(ctx context.Context, enable bool) error
	RequestPermissions(ctx context.Context, perms *relay.Permissions) error
	PostNotification(ctx context.Context, contents map[string]string, data map[string]any, playerID string) error
	SyncHashedEmail(ctx context.Context, email string) error
	SetLogLevel(ctx context.Context, logLevel, visualLevel relay.LogLevel) error
}

type CommandAPI struct {
	Relay        Relay
	ReplyTimeout time.Duration
	Logger       *slog.Logger
}

func NewCommandAPI(r Relay, replyTimeout time.Duration, logger *slog.Logger) *CommandAPI {
	return &CommandAPI{
		Relay:        r,
		ReplyTimeout: replyTimeout,
		Logger:       logger,
	}
}

// --- Tags ---

// SendTagsRequest accepts either a single key/value pair or a tag map.
type SendTagsRequest struct {
	Key   string            `json:"key,omitempty"`
	Value string            `json:"value,omitempty"`
	Tags  map[string]string `json:"tags,omitempty"`
}

func (api *CommandAPI) SendTags(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !api.authorized(w, r) {
		return
	}

	var req SendTagsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}

	var err error
	switch {
	case req.Key != "" && req.Tags != nil:
		response.WriteJSONError(w, http.StatusBadRequest, "send either key/value or tags, not both")
		return
	case req.Key != "":
		err = api.Relay.SendTag(ctx, req.Key, req.Value)
	case req.Tags != nil:
		err = api.Relay.SendTags(ctx, req.Tags)
	default:
		response.WriteJSONError(w, http.StatusBadRequest, "missing key or tags")
		return
	}
	if err != nil {
		api.commandFailed(w, "sendTags", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// GetTags waits for the delivery subsystem's reply for up to ReplyTimeout.
func (api *CommandAPI) GetTags(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !api.authorized(w, r) {
		return
	}

	replies := make(chan map[string]string, 1)
	err := api.Relay.GetTags(ctx, func(tags map[string]string) {
		select {
		case replies <- tags:
		default:
		}
	})
	if err != nil {
		api.commandFailed(w, "getTags", err)
		return
	}

	timer := time.NewTimer(api.ReplyTimeout)
	defer timer.Stop()

	select {
	case tags := <-replies:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"tags": tags})
	case <-timer.C:
		api.Logger.Warn("GetTags: no reply before timeout", "timeout", api.ReplyTimeout)
		response.WriteJSONError(w, http.StatusGatewayTimeout, "no reply from delivery subsystem")
	case <-ctx.Done():
		api.Logger.Debug("GetTags: client went away", "err", ctx.Err())
	}
}

func (api *CommandAPI) DeleteTag(w http.ResponseWriter, r *http.Request) {
	if !api.authorized(w, r) {
		return
	}
	key := r.PathValue("key")
	if key == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing tag key")
		return
	}
	if err := api.Relay.DeleteTag(r.Context(), key); err != nil {
		api.commandFailed(w, "deleteTag", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// --- Subscription & permissions ---

type SubscriptionRequest struct {
	Enabled *bool `json:"enabled"`
}

func (api *CommandAPI) SetSubscription(w http.ResponseWriter, r *http.Request) {
	if !api.authorized(w, r) {
		return
	}
	var req SubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Enabled == nil {
		response.WriteJSONError(w, http.StatusBadRequest, "missing enabled")
		return
	}
	if err := api.Relay.SetSubscription(r.Context(), *req.Enabled); err != nil {
		api.commandFailed(w, "setSubscription", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// RequestPermissions takes an optional permissions object. An empty body
// asks for every permission.
func (api *CommandAPI) RequestPermissions(w http.ResponseWriter, r *http.Request) {
	if !api.authorized(w, r) {
		return
	}
	var perms *relay.Permissions
	var req relay.Permissions
	err := json.NewDecoder(r.Body).Decode(&req)
	switch {
	case errors.Is(err, io.EOF):
	case err != nil:
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	default:
		perms = &req
	}
	if err := api.Relay.RequestPermissions(r.Context(), perms); err != nil {
		api.commandFailed(w, "requestPermissions", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// --- Notifications, email & logging ---

type PostNotificationRequest struct {
	Contents map[string]string `json:"contents"`
	Data     map[string]any    `json:"data,omitempty"`
	PlayerID string            `json:"player_id"`
}

func (api *CommandAPI) PostNotification(w http.ResponseWriter, r *http.Request) {
	if !api.authorized(w, r) {
		return
	}
	var req PostNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if len(req.Contents) == 0 || req.PlayerID == "" {
		api.Logger.Warn("PostNotification: Validation failed", "reason", "missing fields")
		response.WriteJSONError(w, http.StatusBadRequest, "contents and player_id are required")
		return
	}
	if err := api.Relay.PostNotification(r.Context(), req.Contents, req.Data, req.PlayerID); err != nil {
		api.commandFailed(w, "postNotification", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type SyncEmailRequest struct {
	Email string `json:"email"`
}

func (api *CommandAPI) SyncHashedEmail(w http.ResponseWriter, r *http.Request) {
	if !api.authorized(w, r) {
		return
	}
	var req SyncEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if !strings.Contains(req.Email, "@") {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid email")
		return
	}
	if err := api.Relay.SyncHashedEmail(r.Context(), req.Email); err != nil {
		api.commandFailed(w, "syncHashedEmail", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type LogLevelRequest struct {
	LogLevel    relay.LogLevel `json:"log_level"`
	VisualLevel relay.LogLevel `json:"visual_level"`
}

func (api *CommandAPI) SetLogLevel(w http.ResponseWriter, r *http.Request) {
	if !api.authorized(w, r) {
		return
	}
	var req LogLevelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if !validLogLevel(req.LogLevel) || !validLogLevel(req.VisualLevel) {
		response.WriteJSONError(w, http.StatusBadRequest, "log levels must be between 0 and 6")
		return
	}
	if err := api.Relay.SetLogLevel(r.Context(), req.LogLevel, req.VisualLevel); err != nil {
		api.commandFailed(w, "setLogLevel", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// --- Helpers ---

func (api *CommandAPI) authorized(w http.ResponseWriter, r *http.Request) bool {
	if _, ok := middleware.GetUserHandleFromContext(r.Context()); !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return false
	}
	return true
}

func (api *CommandAPI) commandFailed(w http.ResponseWriter, command string, err error) {
	api.Logger.Error("Command failed", "command", command, "err", err)
	response.WriteJSONError(w, http.StatusBadGateway, "command forwarding failed")
}

func validLogLevel(l relay.LogLevel) bool {
	return l >= relay.LogLevelNone && l <= relay.LogLevelVerbose
}
