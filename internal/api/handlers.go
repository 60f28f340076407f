package api

import (
	"errors"
	"net/http"

	"github.com/reviewlens/reviewlens/internal/analysis"
	"github.com/reviewlens/reviewlens/internal/config"
	"github.com/reviewlens/reviewlens/internal/diff"
	"github.com/reviewlens/reviewlens/internal/model"
	"github.com/reviewlens/reviewlens/internal/pipeline"
)

// --- Health ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.opts.Version,
		"ruleset": analysis.RulesetVersion,
	})
}

// --- Rules ---

type ruleJSON struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Severity string `json:"default_severity"`
	Enabled  bool   `json:"enabled"`
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	settings := s.opts.Config.RuleSettings()
	var rules []ruleJSON
	for _, sc := range analysis.Registry() {
		rules = append(rules, ruleJSON{
			ID:       sc.ID(),
			Title:    sc.Title(),
			Severity: sc.DefaultSeverity().String(),
			Enabled:  settings[sc.ID()].Enabled,
		})
	}
	s.writeJSON(w, http.StatusOK, rules)
}

// --- Review ---

type reviewRequest struct {
	Diff   string `json:"diff"`
	FailOn string `json:"fail_on,omitempty"`
	// Files maps repository paths to their post-change contents. When set
	// it replaces the server's tree for this review.
	Files map[string]string `json:"files,omitempty"`
}

type reviewResponse struct {
	Outcome int           `json:"outcome"`
	Passed  bool          `json:"passed"`
	Report  *model.Report `json:"report"`
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := readJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if req.Diff == "" {
		s.writeError(w, http.StatusBadRequest, "diff is required")
		return
	}
	if req.FailOn != "" && req.FailOn != config.FailOnNone {
		if _, err := model.ParseSeverity(req.FailOn); err != nil {
			s.writeError(w, http.StatusBadRequest, "fail_on: "+err.Error())
			return
		}
	}

	p := s.pipeline(req.FailOn, req.Files)
	rep, err := p.Run(r.Context(), req.Diff)
	if err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, reviewResponse{
		Outcome: int(pipeline.Classify(rep, nil, p.Config.FailOn)),
		Passed:  pipeline.Passed(rep, p.Config.FailOn),
		Report:  rep,
	})
}

func statusFor(err error) int {
	var perr *diff.ParseError
	var cerr *config.Error
	switch {
	case errors.As(err, &perr):
		return http.StatusBadRequest
	case errors.As(err, &cerr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// --- Parse ---

type parseRequest struct {
	Diff string `json:"diff"`
}

type parseResponse struct {
	Files []fileJSON    `json:"files"`
	Stats diffStatsJSON `json:"stats"`
}

type fileJSON struct {
	Path         string `json:"path"`
	OldPath      string `json:"old_path,omitempty"`
	Kind         string `json:"kind"`
	AddedLines   int    `json:"added_lines"`
	DeletedLines int    `json:"deleted_lines"`
	Hunks        int    `json:"hunks"`
}

type diffStatsJSON struct {
	Files   int `json:"files"`
	Added   int `json:"added"`
	Deleted int `json:"deleted"`
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	var req parseRequest
	if err := readJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if req.Diff == "" {
		s.writeError(w, http.StatusBadRequest, "diff is required")
		return
	}

	set, err := diff.Parse(req.Diff)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "parsing diff: "+err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, parsedFiles(set))
}

func parsedFiles(set *diff.Set) parseResponse {
	nFiles, added, deleted := set.Stats()
	resp := parseResponse{
		Files: []fileJSON{},
		Stats: diffStatsJSON{Files: nFiles, Added: added, Deleted: deleted},
	}
	for _, f := range set.Files {
		resp.Files = append(resp.Files, fileJSON{
			Path:         f.Path,
			OldPath:      f.OldPath,
			Kind:         f.Kind.String(),
			AddedLines:   f.AddedLines,
			DeletedLines: f.DeletedLines,
			Hunks:        len(f.Hunks),
		})
	}
	return resp
}
