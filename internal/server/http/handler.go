package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/leshachaplin/webtrack/internal/apierror"
	"github.com/leshachaplin/webtrack/internal/service"
	"github.com/leshachaplin/webtrack/tracker"
)

// Config is the tracking surface the relay exposes: which site hits are
// recorded against and whether the relay manages first-party cookies.
type Config struct {
	SiteID         int
	CookiesEnabled bool
	Cookies        tracker.CookieConfig
}

type Handler struct {
	cfg          Config
	hitProcessor service.HitProcessor
	logger       zerolog.Logger
}

func NewHandler(cfg Config, hitProcessor service.HitProcessor, logger zerolog.Logger) *Handler {
	return &Handler{
		cfg:          cfg,
		hitProcessor: hitProcessor,
		logger:       logger,
	}
}

func (h *Handler) error(err error, w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	var apiErr apierror.Error
	if !errors.As(err, &apiErr) {
		var vErr tracker.ValidationError
		if errors.As(err, &vErr) {
			apiErr = apierror.BadRequest(vErr.Error())
		} else {
			apiErr = apierror.NewAPIError(err.Error(), http.StatusInternalServerError)
		}
	}

	w.WriteHeader(apiErr.StatusCode())
	if err = json.NewEncoder(w).Encode(apiErr); err != nil {
		h.logger.Error().Err(err).Msg("encode error response")
	}
}
