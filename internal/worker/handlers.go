package worker

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/forgecalc/internal/enhance"
	"github.com/thebtf/forgecalc/internal/pool"
	"github.com/thebtf/forgecalc/internal/session"
	"github.com/thebtf/forgecalc/pkg/models"
)

// ValuateRequest asks what it would cost to enhance one item to a target.
type ValuateRequest struct {
	ItemHrid    string                   `json:"item_hrid"`
	TargetLevel int                      `json:"target_level"`
	Params      models.EnhancementParams `json:"params"`
}

// BatchValuateRequest prices many items under one parameter set.
type BatchValuateRequest struct {
	Items  []BatchItem              `json:"items"`
	Params models.EnhancementParams `json:"params"`
}

// BatchItem is one entry of a batch valuation.
type BatchItem struct {
	ItemHrid    string `json:"item_hrid"`
	TargetLevel int    `json:"target_level"`
}

// BatchResult is one entry of a batch response, in input order.
type BatchResult struct {
	ItemHrid  string                 `json:"item_hrid"`
	Valuation *enhance.PathValuation `json:"valuation,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

func (s *Server) handleValuate(w http.ResponseWriter, r *http.Request) {
	var req ValuateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	pathReq, err := s.pathRequest(req.ItemHrid, req.TargetLevel, req.Params)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	valuation, err := s.valuate(*pathReq)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, valuation)
}

func (s *Server) handleValuateBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchValuateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	results := make([]BatchResult, len(req.Items))
	reqs := make([]*enhance.PathRequest, len(req.Items))
	for i, item := range req.Items {
		pathReq, err := s.pathRequest(item.ItemHrid, item.TargetLevel, req.Params)
		if err != nil {
			results[i] = BatchResult{ItemHrid: item.ItemHrid, Error: err.Error()}
			continue
		}
		reqs[i] = pathReq
	}

	// Fan out over the pool in contiguous chunks, one future per chunk,
	// reassembled by original index.
	chunks := pool.Chunks(len(reqs), s.pool.Size())
	tasks := make([]pool.Task, len(chunks))
	for i, c := range chunks {
		tasks[i] = &chunkTask{reqs: reqs[c[0]:c[1]]}
	}
	futures := s.pool.SubmitAll(tasks)
	for i, f := range futures {
		c := chunks[i]
		val, err := f.Wait()
		var chunkResults []BatchResult
		if err != nil {
			// Pool fault rejects only this chunk; retry it sequentially.
			log.Warn().Err(err).Int("chunk", i).Msg("Pool chunk failed, retrying sequentially")
			chunkResults = valuateChunk(reqs[c[0]:c[1]])
		} else {
			chunkResults = val.([]BatchResult)
		}
		for j, res := range chunkResults {
			idx := c[0] + j
			if results[idx].Error == "" && results[idx].Valuation == nil {
				results[idx] = res
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// chunkTask prices a contiguous slice of path requests on one pool worker.
type chunkTask struct {
	reqs []*enhance.PathRequest
}

func (t *chunkTask) Key() string {
	key := "chunk"
	for _, r := range t.reqs {
		if r != nil {
			key += "|" + r.CacheKey()
		} else {
			key += "|nil"
		}
	}
	return key
}

func (t *chunkTask) Run() (any, error) {
	return valuateChunk(t.reqs), nil
}

func valuateChunk(reqs []*enhance.PathRequest) []BatchResult {
	results := make([]BatchResult, len(reqs))
	for i, r := range reqs {
		if r == nil {
			continue
		}
		valuation, err := enhance.CalculateEnhancementPath(*r)
		if err != nil {
			results[i] = BatchResult{ItemHrid: r.Item.Hrid, Error: err.Error()}
			continue
		}
		results[i] = BatchResult{ItemHrid: r.Item.Hrid, Valuation: valuation}
	}
	return results
}

// valuate runs one path calculation through the pool, falling back to a
// sequential computation when the pool faults.
func (s *Server) valuate(req enhance.PathRequest) (*enhance.PathValuation, error) {
	future := s.pool.Submit(&pathTask{req: req})
	val, err := future.Wait()
	if err == nil {
		return val.(*enhance.PathValuation), nil
	}
	if isValuationError(err) {
		return nil, err
	}
	log.Warn().Err(err).Str("item", req.Item.Hrid).Msg("Pool task failed, retrying sequentially")
	return enhance.CalculateEnhancementPath(req)
}

// pathTask adapts a PathRequest to the compute pool.
type pathTask struct {
	req enhance.PathRequest
}

func (t *pathTask) Key() string { return t.req.CacheKey() }

func (t *pathTask) Run() (any, error) {
	return enhance.CalculateEnhancementPath(t.req)
}

func (s *Server) pathRequest(itemHrid string, target int, params models.EnhancementParams) (*enhance.PathRequest, error) {
	item, ok := s.data.Item(itemHrid)
	if !ok {
		return nil, fmt.Errorf("unknown item %s", itemHrid)
	}
	return &enhance.PathRequest{
		Item:      item,
		Target:    target,
		Params:    params,
		BaseRates: s.data.BaseRates(),
		Prices:    s.prices,
	}, nil
}

// AttemptEventRequest wraps a game event with session start options used
// when the event opens a new session.
type AttemptEventRequest struct {
	Event       models.AttemptEvent `json:"event"`
	StartLevel  *int                `json:"start_level,omitempty"`
	TargetLevel int                 `json:"target_level,omitempty"`
	ProtectFrom int                 `json:"protect_from,omitempty"`
}

func (s *Server) handleAttemptEvent(w http.ResponseWriter, r *http.Request) {
	var req AttemptEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if req.Event.ItemHrid == "" {
		writeError(w, http.StatusBadRequest, errors.New("event.item_hrid is required"))
		return
	}

	sess, outcome, err := s.tracker.Apply(r.Context(), req.Event, session.StartOptions{
		StartLevel:  req.StartLevel,
		TargetLevel: req.TargetLevel,
		ProtectFrom: req.ProtectFrom,
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	s.broadcaster.Broadcast("session", sess)
	writeJSON(w, http.StatusOK, map[string]any{"session": sess, "outcome": outcome})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.tracker.List()})
}

func (s *Server) handleCurrentSession(w http.ResponseWriter, r *http.Request) {
	sess := s.tracker.Current()
	if sess == nil {
		writeError(w, http.StatusNotFound, errors.New("no current session"))
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess := s.tracker.Get(chi.URLParam(r, "id"))
	if sess == nil {
		writeError(w, http.StatusNotFound, errors.New("session not found"))
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.tracker.Finalize(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if sess == nil {
		writeError(w, http.StatusNotFound, errors.New("no current session"))
		return
	}
	s.broadcaster.Broadcast("session", sess)
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleResumeSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.tracker.Resume(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleExtendSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TargetLevel int `json:"target_level"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	sess, err := s.tracker.Extend(r.Context(), chi.URLParam(r, "id"), req.TargetLevel)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	s.broadcaster.Broadcast("session", sess)
	writeJSON(w, http.StatusOK, sess)
}

// isValuationError reports whether the error is a domain rejection rather
// than a compute fault; domain rejections are not retried.
func isValuationError(err error) bool {
	return errors.Is(err, enhance.ErrInvalidTarget) ||
		errors.Is(err, enhance.ErrInvalidProtection) ||
		errors.Is(err, enhance.ErrPriceUnknown)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, enhance.ErrInvalidTarget), errors.Is(err, enhance.ErrInvalidProtection):
		return http.StatusBadRequest
	case errors.Is(err, enhance.ErrPriceUnknown):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrStateViolation):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
