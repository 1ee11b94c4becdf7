package api

import (
	"errors"
	"net/http"

	"github.com/okian/talentloop/internal/domain/evaluation"
)

type scoreRequest struct {
	CandidateDescription string `json:"candidate_description"`
	JobRequirements      string `json:"job_requirements"`
	JobID                string `json:"job_id,omitempty"`
}

type batchRequest struct {
	JobID           string                 `json:"job_id"`
	JobRequirements string                 `json:"job_requirements"`
	Candidates      []evaluation.Candidate `json:"candidates"`
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_score"
	var req scoreRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}

	res, err := s.deps.Scoring.Evaluate(r.Context(), evaluation.Request{
		JobID:                req.JobID,
		CandidateDescription: req.CandidateDescription,
		JobRequirements:      req.JobRequirements,
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, evaluation.ErrInvalidRequest):
		s.fail(w, r, WrapKind(op, ErrBadRequest, err))
	default:
		s.fail(w, r, WrapKind(op, ErrScoring, err))
	}
}

func (s *Server) handleScoreBatch(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_score_batch"
	var req batchRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	if len(req.Candidates) == 0 {
		s.fail(w, r, WrapKind(op, ErrBadRequest, errors.New("candidates must not be empty")))
		return
	}

	batch, err := s.deps.Scoring.EvaluateAll(r.Context(), req.JobID, req.JobRequirements, req.Candidates)
	if err != nil {
		s.fail(w, r, classify(op, err))
		return
	}
	writeJSON(w, http.StatusOK, batch)
}
