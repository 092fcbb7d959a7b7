package httpapi

import (
	"encoding/json"
	"net/http"
)

type actorBody struct {
	ActorID string `json:"actorId"`
}

func (h *Handler) handleCAEnroll(w http.ResponseWriter, r *http.Request) {
	var body actorBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ActorID == "" {
		writeErr(w, http.StatusBadRequest, "missing actorId")
		return
	}
	if err := h.svc.EnrollActor(body.ActorID); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"actorId": body.ActorID, "status": "enrolled"})
}

func (h *Handler) handleCARevoke(w http.ResponseWriter, r *http.Request) {
	var body actorBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ActorID == "" {
		writeErr(w, http.StatusBadRequest, "missing actorId")
		return
	}
	if err := h.svc.RevokeActor(body.ActorID); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"actorId": body.ActorID, "status": "revoked"})
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Health()
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type sdVerifyBody struct {
	ReportID    string   `json:"reportId"`
	RequesterID string   `json:"requesterId"`
	Subset      []string `json:"subset"`
	Claimed     string   `json:"claimedHex"`
}

func (h *Handler) handleSDVerify(w http.ResponseWriter, r *http.Request) {
	var body sdVerifyBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErr(w, http.StatusBadRequest, "malformed request body")
		return
	}
	ok, denyErr := h.svc.VerifySelectiveDisclosure(body.ReportID, body.RequesterID, body.Subset, body.Claimed)
	if denyErr != nil {
		writeDenial(w, denyErr)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"verified": ok})
}
