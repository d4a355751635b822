package api

import (
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/grants"
)

const (
	defaultPageLimit = 100
	maxPageLimit     = 1000
)

type listResponse struct {
	Pagination pagination           `json:"pagination"`
	Grants     []grants.Opportunity `json:"grants"`
}

type pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

// listGrants serves the stored opportunities, filtered and paginated.
// format=html renders the dashboard table instead of JSON.
func (s *Server) listGrants(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := grants.Filter{
		Search:   q.Get("search"),
		Agency:   q.Get("agency"),
		Category: q.Get("category"),
		Status:   q.Get("status"),
	}
	page := parsePositiveInt(q.Get("page"), 1)
	limit := parsePositiveInt(q.Get("limit"), defaultPageLimit)
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	result, err := s.store.List(r.Context(), filter, grants.PageRequest{Page: page, Limit: limit})
	if err != nil {
		s.logger.Error("list grants failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list grants")
		return
	}

	resp := listResponse{
		Pagination: pagination{
			Total: result.Total,
			Page:  page,
			Limit: limit,
			Pages: result.Pages,
		},
		Grants: result.Opportunities,
	}
	if resp.Grants == nil {
		resp.Grants = []grants.Opportunity{}
	}

	if q.Get("format") == "html" {
		s.renderDashboard(w, dashboardView{
			listResponse: resp,
			Search:       filter.Search,
			PrevURL:      pageURL(filter, page-1, limit),
			NextURL:      pageURL(filter, page+1, limit),
			HasPrev:      page > 1,
			HasNext:      page < result.Pages,
		})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// getGrant serves a single opportunity by its Grants.gov id.
func (s *Server) getGrant(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "opportunity_id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "opportunity_id is required")
		return
	}

	opp, err := s.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, grants.ErrNotFound) {
			writeError(w, http.StatusNotFound, "opportunity not found")
			return
		}
		s.logger.Error("get grant failed", zap.String("opportunity_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get grant")
		return
	}
	writeJSON(w, http.StatusOK, opp)
}

func parsePositiveInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

type dashboardView struct {
	listResponse
	Search  string
	PrevURL string
	NextURL string
	HasPrev bool
	HasNext bool
}

// pageURL rebuilds the html listing URL for a neighboring page,
// preserving the active filters.
func pageURL(filter grants.Filter, page, limit int) string {
	v := url.Values{}
	v.Set("format", "html")
	v.Set("page", strconv.Itoa(page))
	v.Set("limit", strconv.Itoa(limit))
	if filter.Search != "" {
		v.Set("search", filter.Search)
	}
	if filter.Agency != "" {
		v.Set("agency", filter.Agency)
	}
	if filter.Category != "" {
		v.Set("category", filter.Category)
	}
	if filter.Status != "" {
		v.Set("status", filter.Status)
	}
	return "/grants?" + v.Encode()
}

var dashboardTmpl = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html>
<head>
<title>Grant Opportunities</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #ccc; padding: 6px 10px; text-align: left; }
th { background: #f0f0f0; }
.meta { color: #666; margin-bottom: 1em; }
.nav { margin-top: 1em; }
</style>
</head>
<body>
<h1>Grant Opportunities</h1>
<form method="get" action="/grants">
<input type="hidden" name="format" value="html">
<input type="text" name="search" value="{{.Search}}" placeholder="Search title, description, number">
<button type="submit">Search</button>
</form>
<p class="meta">{{.Pagination.Total}} total, page {{.Pagination.Page}} of {{.Pagination.Pages}}</p>
<table>
<tr><th>ID</th><th>Number</th><th>Title</th><th>Agency</th><th>Status</th><th>Close Date</th><th>Ceiling</th></tr>
{{range .Grants}}
<tr>
<td><a href="{{.OpportunityURL}}">{{.ID}}</a></td>
<td>{{.Number}}</td>
<td>{{.Title}}</td>
<td>{{.AgencyName}}</td>
<td>{{.Status}}</td>
<td>{{.CloseDate}}</td>
<td>{{printf "%.0f" .AwardCeiling}}</td>
</tr>
{{end}}
</table>
<div class="nav">
{{if .HasPrev}}<a href="{{.PrevURL}}">&laquo; Previous</a>{{end}}
{{if .HasNext}}<a href="{{.NextURL}}">Next &raquo;</a>{{end}}
</div>
</body>
</html>
`))

func (s *Server) renderDashboard(w http.ResponseWriter, view dashboardView) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardTmpl.Execute(w, view); err != nil {
		s.logger.Error("render dashboard failed", zap.Error(err))
	}
}
