package handler

import (
	"encoding/csv"
	"net/http"
	"strconv"

	"github.com/Dan9191/bank-core/internal/models"
	"github.com/Dan9191/bank-core/internal/service"
	"github.com/shopspring/decimal"
)

// PendingApplications lists applications waiting for a decision
func (h *Handler) PendingApplications(w http.ResponseWriter, r *http.Request) {
	apps, err := h.svc.Applications.Pending(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, apps)
}

type decisionRequest struct {
	FinalLimit decimal.Decimal `json:"final_limit"`
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, as models.Role) {
	appID, err := pathID(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var req decisionRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	decision, err := h.svc.Applications.Decide(r.Context(), appID, req.FinalLimit, as)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

// ApproveApplication approves an application within its scored band
func (h *Handler) ApproveApplication(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, models.RoleEmployee)
}

// ForceApproveApplication approves an application with any positive limit
func (h *Handler) ForceApproveApplication(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, role(r))
}

// RejectApplication rejects a pending application
func (h *Handler) RejectApplication(w http.ResponseWriter, r *http.Request) {
	appID, err := pathID(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	app, err := h.svc.Applications.Reject(r.Context(), appID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

type cardStatusRequest struct {
	Status models.CardStatus `json:"status"`
}

// SetCardStatus changes any card's status
func (h *Handler) SetCardStatus(w http.ResponseWriter, r *http.Request) {
	cardID, err := pathID(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var req cardStatusRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	card, err := h.svc.Cards.SetStatus(r.Context(), cardID, req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

// AllApplications lists every application
func (h *Handler) AllApplications(w http.ResponseWriter, r *http.Request) {
	apps, err := h.svc.Applications.All(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, apps)
}

// ExportApplications streams every application as a semicolon separated report
func (h *Handler) ExportApplications(w http.ResponseWriter, r *http.Request) {
	apps, err := h.svc.Applications.All(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="applications_report.csv"`)
	out := csv.NewWriter(w)
	out.Comma = ';'
	_ = out.Write([]string{"ID", "Client", "Requested", "Approved", "Score", "Term", "Status", "Date"})
	for _, app := range apps {
		approved := "0"
		if app.FinalApprovedLimit != nil {
			approved = app.FinalApprovedLimit.String()
		}
		_ = out.Write([]string{
			strconv.FormatInt(app.ID, 10),
			strconv.FormatInt(app.ClientID, 10),
			app.RequestedLimit.String(),
			approved,
			strconv.Itoa(app.CalculatedScore),
			strconv.Itoa(app.TermMonths),
			string(app.Status),
			app.CreatedAt.Format("2006-01-02T15:04:05"),
		})
	}
	out.Flush()
	if err := out.Error(); err != nil {
		h.log.WithError(err).Error("Failed to write applications report")
	}
}

// LoyaltyRules lists the MCC rules
func (h *Handler) LoyaltyRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.svc.Rules.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

// AddLoyaltyRule creates an MCC rule
func (h *Handler) AddLoyaltyRule(w http.ResponseWriter, r *http.Request) {
	var rule models.LoyaltyRule
	if err := decode(r, &rule); err != nil {
		badRequest(w, err.Error())
		return
	}
	saved, err := h.svc.Rules.Add(r.Context(), rule)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

// DeleteLoyaltyRule removes an MCC rule
func (h *Handler) DeleteLoyaltyRule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := h.svc.Rules.Delete(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Parameters lists the system parameters
func (h *Handler) Parameters(w http.ResponseWriter, r *http.Request) {
	params, err := h.svc.Params.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, params)
}

// SetParameter stores a system parameter
func (h *Handler) SetParameter(w http.ResponseWriter, r *http.Request) {
	var param models.SystemParameter
	if err := decode(r, &param); err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := h.svc.Params.Set(r.Context(), param.Key, param.Value, param.Description); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, param)
}

// Users lists all logins
func (h *Handler) Users(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.Users(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// CreateUser creates an enabled login of any role
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRegister(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	resp, err := h.svc.CreateUser(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// ApproveUser enables a login
func (h *Handler) ApproveUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := h.svc.SetUserEnabled(r.Context(), id, true); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "enabled": true})
}

// ToggleUserBlock flips a login between enabled and disabled
func (h *Handler) ToggleUserBlock(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	user, err := h.svc.ToggleUserBlock(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// ClientProfile returns the client profile of a login
func (h *Handler) ClientProfile(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	client, err := h.svc.ClientByUserID(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, client)
}

// UpdateClientProfile edits the client profile of a login
func (h *Handler) UpdateClientProfile(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var req service.ClientUpdate
	if err := decode(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	client, err := h.svc.UpdateClient(r.Context(), id, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, client)
}

// UserCards lists the cards of a login's client profile
func (h *Handler) UserCards(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	client, err := h.svc.ClientByUserID(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	cards, err := h.svc.ClientCards(r.Context(), client.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cards)
}
