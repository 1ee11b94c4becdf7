package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okian/talentloop/internal/domain/model"
)

// evaluationRequest mirrors the OpenAPI schema for POST /api/evaluations.
type evaluationRequest struct {
	EvaluationID         string `json:"evaluation_id"`
	CandidateID          string `json:"candidate_id"`
	JobID                string `json:"job_id"`
	CandidateDescription string `json:"candidate_description"`
	JobRequirements      string `json:"job_requirements"`
}

func (e evaluationRequest) validate() error {
	switch {
	case strings.TrimSpace(e.CandidateID) == "":
		return errors.New("missing candidate_id")
	case strings.TrimSpace(e.JobID) == "":
		return errors.New("missing job_id")
	case strings.TrimSpace(e.CandidateDescription) == "":
		return errors.New("missing candidate_description")
	case strings.TrimSpace(e.JobRequirements) == "":
		return errors.New("missing job_requirements")
	}
	return nil
}

type ackResponse struct {
	Status       string `json:"status"`
	EvaluationID string `json:"evaluation_id"`
	Duplicate    bool   `json:"duplicate"`
}

func (s *Server) handleEvaluation(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_evaluation"
	var req evaluationRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		s.fail(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	if strings.TrimSpace(req.EvaluationID) == "" {
		req.EvaluationID = uuid.NewString()
	}

	if s.deps.Deduper.SeenAndRecord(r.Context(), req.EvaluationID) {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", EvaluationID: req.EvaluationID, Duplicate: true})
		return
	}

	err := s.deps.Queue.Enqueue(r.Context(), model.Evaluation{
		EvaluationID:         req.EvaluationID,
		CandidateID:          req.CandidateID,
		JobID:                req.JobID,
		CandidateDescription: req.CandidateDescription,
		JobRequirements:      req.JobRequirements,
		SubmittedAt:          time.Now(),
	})
	if err != nil {
		s.deps.Deduper.Unrecord(r.Context(), req.EvaluationID)
		s.fail(w, r, classify(op, err))
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", EvaluationID: req.EvaluationID})
}

func (s *Server) handleCandidate(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_candidate"
	c, err := s.deps.Candidates.Candidate(r.Context(), r.PathValue("candidate_id"))
	if err != nil {
		s.fail(w, r, classify(op, err))
		return
	}
	writeJSON(w, http.StatusOK, c)
}
