package handler

import (
	"carelink/internal/audit"
	"carelink/internal/domain"
)

type runResponse struct {
	Status     string `json:"status"`
	EndpointID string `json:"endpoint_id,omitempty"`
}

type candidateResponse struct {
	PatientUUID string  `json:"patient_uuid"`
	Display     string  `json:"display,omitempty"`
	Score       float64 `json:"score"`
}

type linkResponse struct {
	CaseID     string              `json:"case_id"`
	Linked     bool                `json:"linked"`
	Candidates []candidateResponse `json:"candidates"`
}

func newLinkResponse(caseID string, candidates []domain.Candidate) linkResponse {
	out := linkResponse{
		CaseID:     caseID,
		Linked:     len(candidates) == 1,
		Candidates: make([]candidateResponse, 0, len(candidates)),
	}
	for _, c := range candidates {
		out.Candidates = append(out.Candidates, candidateResponse{
			PatientUUID: c.Patient.UUID,
			Display:     c.Patient.Display,
			Score:       c.Score,
		})
	}
	return out
}

type auditResponse struct {
	EndpointID string        `json:"endpoint_id"`
	Events     []audit.Event `json:"events"`
}
