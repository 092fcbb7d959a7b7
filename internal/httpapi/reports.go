package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/apscustody/labcustody/internal/service"
)

type emitBody struct {
	ReportID        string   `json:"reportId"`
	LabID           string   `json:"labId"`
	PatientRef      string   `json:"patientRef"`
	IssuedAt        string   `json:"issuedAt"`
	ExamType        string   `json:"examType"`
	ResultShort     string   `json:"resultShort"`
	Note            string   `json:"note"`
	Content         string   `json:"content"`
	ExtraRecipients []string `json:"extraRecipients"`
}

func (b emitBody) toRequest() service.EmitRequest {
	return service.EmitRequest{
		ReportID:        b.ReportID,
		LabID:           b.LabID,
		PatientRef:      b.PatientRef,
		IssuedAt:        b.IssuedAt,
		ExamType:        b.ExamType,
		ResultShort:     b.ResultShort,
		Note:            b.Note,
		Content:         []byte(b.Content),
		ExtraRecipients: b.ExtraRecipients,
	}
}

func (h *Handler) handleEmit(w http.ResponseWriter, r *http.Request) {
	var body emitBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErr(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if body.ReportID == "" {
		body.ReportID = uuid.NewString()
	}
	if denyErr := h.svc.Emit(body.toRequest()); denyErr != nil {
		writeDenial(w, denyErr)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"reportId": body.ReportID})
}

type revokeBody struct {
	LabID  string `json:"labId"`
	Reason string `json:"reason"`
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var body revokeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErr(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if denyErr := h.svc.Revoke(id, body.LabID, body.Reason); denyErr != nil {
		writeDenial(w, denyErr)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reportId": id, "status": "revoked"})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	oldID := r.PathValue("id")
	var body emitBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErr(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if body.ReportID == "" {
		body.ReportID = uuid.NewString()
	}
	if denyErr := h.svc.Update(oldID, body.LabID, body.toRequest()); denyErr != nil {
		writeDenial(w, denyErr)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"oldReportId": oldID, "newReportId": body.ReportID})
}

type shareBody struct {
	PatientID string `json:"patientId"`
	TargetID  string `json:"targetId"`
}

func (h *Handler) handleShare(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var body shareBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErr(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if denyErr := h.svc.Share(id, body.PatientID, body.TargetID); denyErr != nil {
		writeDenial(w, denyErr)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reportId": id, "sharedWith": body.TargetID})
}

func (h *Handler) handleUnshare(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var body shareBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErr(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if denyErr := h.svc.Unshare(id, body.PatientID, body.TargetID); denyErr != nil {
		writeDenial(w, denyErr)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reportId": id, "unsharedFrom": body.TargetID})
}

func (h *Handler) handleOpen(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	requesterID := r.URL.Query().Get("as")
	if requesterID == "" {
		writeErr(w, http.StatusBadRequest, "missing ?as=<actorId>")
		return
	}
	content, currentID, denyErr := h.svc.Open(id, requesterID)
	if denyErr != nil {
		writeDenial(w, denyErr)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"reportId":  currentID,
		"requestId": id,
		"content":   string(content),
	})
}

func (h *Handler) handleStateOf(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	st, err := h.svc.StateOf(id)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          st.Status,
		"currentReportId": st.CurrentReportID,
		"updatedChain":    st.UpdatedChain,
	})
}
