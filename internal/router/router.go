// Package router exposes the user directory over a JSON HTTP API built on chi.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	validator "github.com/go-playground/validator/v10"

	"github.com/patric-chuzhbe/userdir/internal/gzippedhttp"
	"github.com/patric-chuzhbe/userdir/internal/logger"
	"github.com/patric-chuzhbe/userdir/internal/models"
	"github.com/patric-chuzhbe/userdir/internal/viewstate"
)

// Clients are told to leave a missing user's page for /404 after this delay.
const notFoundRedirectDelayMs = 2000

type service interface {
	View(ctx context.Context) models.ViewSnapshot
	Search(ctx context.Context, term string) models.ViewSnapshot
	Sort(ctx context.Context, rawMode string) (models.ViewSnapshot, error)
	Filter(ctx context.Context, filters models.AdvancedFilters) models.ViewSnapshot
	ResetFilters(ctx context.Context) models.ViewSnapshot
	GoToPage(ctx context.Context, page int) models.ViewSnapshot
	Retry(ctx context.Context) (models.ViewSnapshot, error)
	UserDetail(ctx context.Context, id int) (models.UserRecord, error)
	ToggleFavorite(ctx context.Context, id int) (models.FavoriteSet, error)
	Favorites(ctx context.Context) models.FavoriteSet
	FavoriteUsers(ctx context.Context) []models.UserRecord
	SubscribeFavorites() (string, <-chan models.FavoritesEvent, func())
	Stats(ctx context.Context) models.InternalStatsResponse
	Ping(ctx context.Context) error
}

type trustedSubnetGuard interface {
	TrustedOnly(h http.Handler) http.Handler
}

type searchRequest struct {
	Term string `json:"term" validate:"max=256"`
}

type sortRequest struct {
	Mode string `json:"mode" validate:"required"`
}

type filtersRequest struct {
	AgeRange  [2]int   `json:"ageRange" validate:"dive,min=0,max=150"`
	Companies []string `json:"companies" validate:"dive,required"`
	Cities    []string `json:"cities" validate:"dive,required"`
}

type pageRequest struct {
	Page int `json:"page"`
}

type errorResponse struct {
	Error    string `json:"error"`
	Redirect string `json:"redirect,omitempty"`
	DelayMs  int    `json:"delayMs,omitempty"`
	// Retryable marks failures the client may resolve with POST /api/users/retry.
	Retryable bool `json:"retryable,omitempty"`
}

type favoritesResponse struct {
	Favorites models.FavoriteSet  `json:"favorites"`
	Users     []models.UserRecord `json:"users"`
}

type toggleResponse struct {
	Favorites models.FavoriteSet `json:"favorites"`
	Added     bool               `json:"added"`
}

type Router struct {
	service  service
	validate *validator.Validate
}

func New(svc service, guard trustedSubnetGuard) *chi.Mux {
	r := &Router{
		service:  svc,
		validate: validator.New(),
	}

	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(logger.WithLoggingHTTPMiddleware)
	mux.Use(gzippedhttp.UngzipRequest)
	mux.Use(gzippedhttp.GzipResponse)

	mux.Get(`/ping`, r.getPing)

	mux.Route(`/api/users`, func(users chi.Router) {
		users.Get(`/`, r.getUsers)
		users.Post(`/search`, r.postSearch)
		users.Post(`/sort`, r.postSort)
		users.Post(`/filters`, r.postFilters)
		users.Delete(`/filters`, r.deleteFilters)
		users.Post(`/page`, r.postPage)
		users.Post(`/retry`, r.postRetry)
		users.Get(`/{id}`, r.getUser)
	})

	mux.Route(`/api/favorites`, func(favorites chi.Router) {
		favorites.Get(`/`, r.getFavorites)
		favorites.Get(`/events`, r.getFavoritesEvents)
		favorites.Post(`/{id}`, r.postFavoriteToggle)
	})

	mux.With(guard.TrustedOnly).Get(`/api/internal/stats`, r.getInternalStats)

	return mux
}

func (r *Router) getPing(response http.ResponseWriter, request *http.Request) {
	if err := r.service.Ping(request.Context()); err != nil {
		logger.Log.Debugln("storage ping failed", "error", err)
		http.Error(response, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	response.WriteHeader(http.StatusOK)
}

func (r *Router) getUsers(response http.ResponseWriter, request *http.Request) {
	writeJSON(response, http.StatusOK, r.service.View(request.Context()))
}

func (r *Router) postSearch(response http.ResponseWriter, request *http.Request) {
	var body searchRequest
	if !r.decode(response, request, &body) {
		return
	}
	writeJSON(response, http.StatusOK, r.service.Search(request.Context(), body.Term))
}

func (r *Router) postSort(response http.ResponseWriter, request *http.Request) {
	var body sortRequest
	if !r.decode(response, request, &body) {
		return
	}

	snapshot, err := r.service.Sort(request.Context(), body.Mode)
	if errors.Is(err, models.ErrUnknownSortMode) {
		writeJSON(response, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		writeJSON(response, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(response, http.StatusOK, snapshot)
}

func (r *Router) postFilters(response http.ResponseWriter, request *http.Request) {
	var body filtersRequest
	if !r.decode(response, request, &body) {
		return
	}

	snapshot := r.service.Filter(request.Context(), models.AdvancedFilters{
		AgeRange:  body.AgeRange,
		Companies: body.Companies,
		Cities:    body.Cities,
	})

	writeJSON(response, http.StatusOK, snapshot)
}

func (r *Router) deleteFilters(response http.ResponseWriter, request *http.Request) {
	writeJSON(response, http.StatusOK, r.service.ResetFilters(request.Context()))
}

func (r *Router) postPage(response http.ResponseWriter, request *http.Request) {
	var body pageRequest
	if !r.decode(response, request, &body) {
		return
	}
	writeJSON(response, http.StatusOK, r.service.GoToPage(request.Context(), body.Page))
}

func (r *Router) postRetry(response http.ResponseWriter, request *http.Request) {
	snapshot, err := r.service.Retry(request.Context())
	if err != nil && !errors.Is(err, viewstate.ErrSuperseded) {
		logger.Log.Infoln("retry failed", "error", err)
		writeJSON(response, http.StatusBadGateway, snapshot)
		return
	}

	writeJSON(response, http.StatusOK, snapshot)
}

func (r *Router) getUser(response http.ResponseWriter, request *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(request, "id"))
	if err != nil {
		writeNotFound(response, (&models.NotFoundError{}).Error())
		return
	}

	record, err := r.service.UserDetail(request.Context(), id)
	var notFound *models.NotFoundError
	if errors.As(err, &notFound) {
		writeNotFound(response, notFound.Error())
		return
	}
	if err != nil {
		logger.Log.Infoln("unable to fetch user", "id", id, "error", err)
		writeJSON(response, http.StatusBadGateway, errorResponse{
			Error:     err.Error(),
			Retryable: models.IsRetryable(err),
		})
		return
	}

	writeJSON(response, http.StatusOK, record)
}

func (r *Router) getFavorites(response http.ResponseWriter, request *http.Request) {
	writeJSON(response, http.StatusOK, favoritesResponse{
		Favorites: r.service.Favorites(request.Context()),
		Users:     r.service.FavoriteUsers(request.Context()),
	})
}

func (r *Router) postFavoriteToggle(response http.ResponseWriter, request *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(request, "id"))
	if err != nil || id < 1 {
		writeJSON(response, http.StatusBadRequest, errorResponse{Error: "invalid user id"})
		return
	}

	favorites, err := r.service.ToggleFavorite(request.Context(), id)
	if err != nil {
		logger.Log.Errorln("unable to persist favorites", "error", err)
		writeJSON(response, http.StatusInternalServerError, errorResponse{Error: "unable to save favorites"})
		return
	}

	writeJSON(response, http.StatusOK, toggleResponse{
		Favorites: favorites,
		Added:     favorites.Contains(id),
	})
}

// getFavoritesEvents streams favorite-set changes as server-sent events
// until the client goes away or the notifier stops.
func (r *Router) getFavoritesEvents(response http.ResponseWriter, request *http.Request) {
	flusher, ok := response.(http.Flusher)
	if !ok {
		http.Error(response, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	subscriberID, events, cancel := r.service.SubscribeFavorites()
	defer cancel()

	response.Header().Set("Content-Type", "text/event-stream")
	response.Header().Set("Cache-Control", "no-cache")
	response.Header().Set("Connection", "keep-alive")
	response.WriteHeader(http.StatusOK)
	flusher.Flush()

	logger.Log.Debugln("favorites subscriber connected", "id", subscriberID)

	for {
		select {
		case <-request.Context().Done():
			return
		case event, open := <-events:
			if !open {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				logger.Log.Errorln("unable to encode favorites event", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(response, "event: favorites\ndata: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (r *Router) getInternalStats(response http.ResponseWriter, request *http.Request) {
	writeJSON(response, http.StatusOK, r.service.Stats(request.Context()))
}

func (r *Router) decode(response http.ResponseWriter, request *http.Request, target interface{}) bool {
	if err := json.NewDecoder(request.Body).Decode(target); err != nil {
		writeJSON(response, http.StatusBadRequest, errorResponse{Error: "malformed JSON body"})
		return false
	}
	if err := r.validate.Struct(target); err != nil {
		writeJSON(response, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return false
	}

	return true
}

func writeNotFound(response http.ResponseWriter, message string) {
	writeJSON(response, http.StatusNotFound, errorResponse{
		Error:    message,
		Redirect: "/404",
		DelayMs:  notFoundRedirectDelayMs,
	})
}

func writeJSON(response http.ResponseWriter, status int, payload interface{}) {
	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(status)
	if err := json.NewEncoder(response).Encode(payload); err != nil {
		logger.Log.Debugln("unable to write response", "error", err)
	}
}
