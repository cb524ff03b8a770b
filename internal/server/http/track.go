package http

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/leshachaplin/webtrack/internal/apierror"
	"github.com/leshachaplin/webtrack/internal/domain"
	"github.com/leshachaplin/webtrack/tracker"
)

// Track accepts one pixel-style hit. The tracking request is rebuilt from
// the inbound request context plus the query parameters, intended cookies
// are written on this response, and delivery happens asynchronously: the
// caller never waits on the collector.
func (h *Handler) Track(w http.ResponseWriter, r *http.Request) {
	trkCtx := tracker.FromRequest(r)
	query := r.URL.Query()

	// a pixel reports the embedding page, not the pixel URL itself
	if u := query.Get("url"); u != "" {
		trkCtx.TargetURL = u
	} else {
		trkCtx.TargetURL = trkCtx.ReferrerURL
		trkCtx.ReferrerURL = ""
	}
	if ref := query.Get("urlref"); ref != "" {
		trkCtx.ReferrerURL = ref
	}

	visit := tracker.NewVisit(trkCtx, h.cfg.SiteID)
	if h.cfg.CookiesEnabled {
		visit.EnableCookies(h.cfg.Cookies)
	}
	if err := applyHitParams(visit, query); err != nil {
		h.error(err, w)
		return
	}
	visit.SetDeviceHints(trkCtx.UserAgent, trkCtx.AcceptLanguage)
	if trkCtx.ClientIP != "" {
		if err := visit.SetIP(trkCtx.ClientIP); err != nil {
			h.error(err, w)
			return
		}
	}

	for _, ck := range visit.PendingCookies() {
		http.SetCookie(w, &http.Cookie{
			Name:     ck.Name,
			Value:    ck.Value,
			Path:     ck.Path,
			Domain:   ck.Domain,
			Secure:   ck.Secure,
			Expires:  ck.Expires,
			SameSite: http.SameSiteLaxMode,
		})
	}

	h.hitProcessor.ProcessHit(domain.Hit{
		ID:         uuid.NewString(),
		Query:      visit.Finalize(),
		ReceivedAt: time.Now(),
	})
	w.WriteHeader(http.StatusNoContent)
}

// Hits accepts a pre-serialized bulk payload in the collector's own
// format: {"requests": ["?idsite=...", ...]}.
func (h *Handler) Hits(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Requests []string `json:"requests"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.error(apierror.BadRequest("malformed JSON body"), w)
		return
	}
	if len(payload.Requests) == 0 {
		h.error(apierror.BadRequest("requests must not be empty"), w)
		return
	}

	now := time.Now()
	batch := domain.HitBatch{ID: uuid.NewString()}
	for _, q := range payload.Requests {
		batch.Hits = append(batch.Hits, domain.Hit{
			ID:         uuid.NewString(),
			Query:      strings.TrimPrefix(q, "?"),
			ReceivedAt: now,
		})
	}

	h.hitProcessor.ProcessBatch(batch)
	w.WriteHeader(http.StatusAccepted)
}

// applyHitParams maps inbound hit parameters onto the visit's setters so
// every field passes the same validation a library caller would get.
func applyHitParams(visit *tracker.Visit, query url.Values) error {
	if title := query.Get("action_name"); title != "" {
		visit.SetPageView(title)
	}

	if query.Has("e_c") || query.Has("e_a") {
		value, err := optionalFloats(query, "e_v")
		if err != nil {
			return err
		}
		if err := visit.SetEvent(query.Get("e_c"), query.Get("e_a"), query.Get("e_n"), value...); err != nil {
			return err
		}
	}

	if query.Has("c_i") {
		err := visit.SetContentInteraction(query.Get("c_i"), query.Get("c_n"), query.Get("c_p"), query.Get("c_t"))
		if err != nil {
			return err
		}
	} else if query.Has("c_n") {
		err := visit.SetContentImpression(query.Get("c_n"), query.Get("c_p"), query.Get("c_t"))
		if err != nil {
			return err
		}
	}

	if query.Has("search") {
		count, err := optionalInts(query, "search_count")
		if err != nil {
			return err
		}
		visit.SetSiteSearch(query.Get("search"), query.Get("search_cat"), count...)
	}

	if query.Has("idgoal") {
		goalID, err := strconv.Atoi(query.Get("idgoal"))
		if err != nil {
			return apierror.BadRequest("idgoal must be an integer")
		}
		revenue, err := optionalFloats(query, "revenue")
		if err != nil {
			return err
		}
		visit.SetGoal(goalID, revenue...)
	}

	if cs := query.Get("cs"); cs != "" {
		visit.SetCharset(cs)
	}
	if query.Get("send_image") == "0" {
		visit.DisableSendImage()
	}
	if u := query.Get("download"); u != "" {
		visit.SetDownload(u)
	}
	if u := query.Get("link"); u != "" {
		visit.SetOutlink(u)
	}
	if uid := query.Get("uid"); uid != "" {
		if err := visit.SetUserID(uid); err != nil {
			return err
		}
	}
	if cid := query.Get("cid"); cid != "" {
		if err := visit.SetVisitorID(cid); err != nil {
			return err
		}
	}
	return nil
}

func optionalFloats(query url.Values, key string) ([]float64, error) {
	if !query.Has(key) {
		return nil, nil
	}
	f, err := strconv.ParseFloat(query.Get(key), 64)
	if err != nil {
		return nil, apierror.BadRequest(key + " must be a number")
	}
	return []float64{f}, nil
}

func optionalInts(query url.Values, key string) ([]int, error) {
	if !query.Has(key) {
		return nil, nil
	}
	n, err := strconv.Atoi(query.Get(key))
	if err != nil {
		return nil, apierror.BadRequest(key + " must be an integer")
	}
	return []int{n}, nil
}
