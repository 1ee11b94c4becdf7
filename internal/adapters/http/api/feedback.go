package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/talentloop/internal/domain/feedback"
)

// feedbackRequest mirrors the OpenAPI schema for POST /api/feedback.
type feedbackRequest struct {
	CandidateID    string `json:"candidate_id"`
	JobID          string `json:"job_id"`
	AIScore        *int   `json:"ai_score"`
	RecruiterStars *int   `json:"recruiter_stars"`
	Version        *int   `json:"version,omitempty"`
}

func (f feedbackRequest) validate() error {
	switch {
	case strings.TrimSpace(f.CandidateID) == "":
		return errors.New("missing candidate_id")
	case strings.TrimSpace(f.JobID) == "":
		return errors.New("missing job_id")
	case f.AIScore == nil:
		return errors.New("missing ai_score")
	case f.RecruiterStars == nil:
		return errors.New("missing recruiter_stars")
	case f.Version != nil && *f.Version < 1:
		return errors.New("version must be >= 1")
	}
	return nil
}

func (f feedbackRequest) toDomain() feedback.Request {
	req := feedback.Request{
		CandidateID:    f.CandidateID,
		JobID:          f.JobID,
		AIScore:        *f.AIScore,
		RecruiterStars: *f.RecruiterStars,
	}
	if f.Version != nil {
		req.Version = *f.Version
	}
	return req
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_feedback"
	var req feedbackRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		s.fail(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}

	res, err := s.deps.Feedback.Process(r.Context(), req.toDomain())
	if err != nil {
		s.fail(w, r, classify(op, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handlePolicy(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_policy"
	version, err := versionParam(r)
	if err != nil {
		s.fail(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	jobID := r.PathValue("job_id")
	st, found, err := s.deps.Feedback.PolicyStats(r.Context(), jobID, version)
	if err != nil {
		s.fail(w, r, classify(op, err))
		return
	}
	if !found {
		s.fail(w, r, WrapKind(op, ErrNotFound, errors.New("no policy state for job "+jobID)))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleCalibration(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_calibration"
	m, err := s.deps.Feedback.Calibration(r.Context(), r.PathValue("job_id"))
	if err != nil {
		s.fail(w, r, classify(op, err))
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleRewards(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_rewards"
	limit := defaultRewardLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > s.maxLimit {
			s.fail(w, r, WrapKind(op, ErrBadRequest,
				errors.New("limit must be an integer between 1 and "+strconv.Itoa(s.maxLimit))))
			return
		}
		limit = n
	}

	records, err := s.deps.Feedback.History(r.Context(), r.PathValue("job_id"), limit)
	if err != nil {
		s.fail(w, r, classify(op, err))
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_summary"
	version, err := versionParam(r)
	if err != nil {
		s.fail(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	sum, err := s.deps.Feedback.Summary(r.Context(), r.PathValue("job_id"), version)
	if err != nil {
		s.fail(w, r, classify(op, err))
		return
	}
	writeJSON(w, http.StatusOK, sum)
}
