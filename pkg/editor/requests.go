package editor

import (
	"net/http"
	"strconv"

	"github.com/vfaronov/turq/pkg/httputil"
	"github.com/vfaronov/turq/pkg/requestlog"
)

// RequestsResponse is the body of GET /requests.
type RequestsResponse struct {
	Requests []*requestlog.Entry `json:"requests"`
	Count    int                 `json:"count"`
	Total    int                 `json:"total"`
}

// handleListRequests lists recent mock requests, newest first. Query
// parameters method, path (a glob), outcome, offset and limit narrow the
// list.
func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := &requestlog.Filter{
		Method:  q.Get("method"),
		Path:    q.Get("path"),
		Outcome: q.Get("outcome"),
	}

	var err error
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid_offset", "offset must be a non-negative integer")
		return
	}
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
		return
	}

	entries := s.requests.List(filter)
	httputil.WriteOK(w, RequestsResponse{
		Requests: entries,
		Count:    len(entries),
		Total:    s.requests.Count(),
	})
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	entry := s.requests.Get(r.PathValue("id"))
	if entry == nil {
		httputil.WriteError(w, http.StatusNotFound, "not_found", "Request not found")
		return
	}
	httputil.WriteOK(w, entry)
}

func (s *Server) handleClearRequests(w http.ResponseWriter, r *http.Request) {
	s.requests.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}
