package handler

import (
	"net/http"

	"github.com/Dan9191/bank-core/internal/service"
	"github.com/shopspring/decimal"
)

// Dashboard returns the caller's cards, loans, points and credit burden
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	id, ok := clientID(w, r)
	if !ok {
		return
	}
	dash, err := h.svc.Dashboard(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

// TransactionHistory lists the caller's transactions
func (h *Handler) TransactionHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := clientID(w, r)
	if !ok {
		return
	}
	items, err := h.svc.TransactionHistory(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// BonusHistory lists the caller's points and cashback movements
func (h *Handler) BonusHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := clientID(w, r)
	if !ok {
		return
	}
	entries, err := h.svc.Loyalty.History(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type convertRequest struct {
	Points int64 `json:"points"`
}

// ConvertPoints exchanges the caller's points for money
func (h *Handler) ConvertPoints(w http.ResponseWriter, r *http.Request) {
	id, ok := clientID(w, r)
	if !ok {
		return
	}
	var req convertRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	amount, err := h.svc.Loyalty.ConvertPoints(r.Context(), id, req.Points)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"points": req.Points, "amount": amount})
}

type applicationRequest struct {
	RequestedLimit      decimal.Decimal `json:"requested_limit"`
	MaritalStatus       string          `json:"marital_status"`
	HasDelinquency      bool            `json:"has_delinquency"`
	WorkExperienceYears float64         `json:"work_experience_years"`
	TermMonths          int             `json:"term_months"`
}

// SubmitApplication scores a credit application for the caller
func (h *Handler) SubmitApplication(w http.ResponseWriter, r *http.Request) {
	id, ok := clientID(w, r)
	if !ok {
		return
	}
	var req applicationRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	message, err := h.svc.Applications.Submit(r.Context(), service.SubmitRequest{
		ClientID:            id,
		RequestedLimit:      req.RequestedLimit,
		MaritalStatus:       req.MaritalStatus,
		HasDelinquency:      req.HasDelinquency,
		WorkExperienceYears: req.WorkExperienceYears,
		TermMonths:          req.TermMonths,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": message})
}

// ClientCards lists the caller's cards
func (h *Handler) ClientCards(w http.ResponseWriter, r *http.Request) {
	id, ok := clientID(w, r)
	if !ok {
		return
	}
	cards, err := h.svc.ClientCards(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cards)
}

// IssueCard opens a new card for the caller
func (h *Handler) IssueCard(w http.ResponseWriter, r *http.Request) {
	id, ok := clientID(w, r)
	if !ok {
		return
	}
	card, err := h.svc.Cards.Issue(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, card)
}

type purchaseRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	MCCCode     string          `json:"mcc_code"`
	Description string          `json:"description"`
}

// Purchase settles a merchant payment from one of the caller's cards
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	id, ok := clientID(w, r)
	if !ok {
		return
	}
	cardID, err := pathID(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var req purchaseRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := h.svc.OwnsCard(r.Context(), id, cardID); err != nil {
		h.writeError(w, r, err)
		return
	}
	result, err := h.svc.Transactions.Settle(r.Context(), service.SettleRequest{
		CardID:      cardID,
		Amount:      req.Amount,
		MCCCode:     req.MCCCode,
		Description: req.Description,
	})
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, status, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// TopUp credits one of the caller's cards
func (h *Handler) TopUp(w http.ResponseWriter, r *http.Request) {
	id, ok := clientID(w, r)
	if !ok {
		return
	}
	cardID, err := pathID(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var req amountRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	card, err := h.svc.Transactions.TopUp(r.Context(), id, cardID, req.Amount)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

// ToggleCardBlock blocks or unblocks one of the caller's cards
func (h *Handler) ToggleCardBlock(w http.ResponseWriter, r *http.Request) {
	id, ok := clientID(w, r)
	if !ok {
		return
	}
	cardID, err := pathID(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	card, err := h.svc.Cards.ToggleBlock(r.Context(), id, cardID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

type transferRequest struct {
	FromCardID   int64           `json:"from_card_id"`
	ToCardNumber string          `json:"to_card_number"`
	Amount       decimal.Decimal `json:"amount"`
}

// Transfer sends money from one of the caller's cards to any card number
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	id, ok := clientID(w, r)
	if !ok {
		return
	}
	var req transferRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := h.svc.OwnsCard(r.Context(), id, req.FromCardID); err != nil {
		h.writeError(w, r, err)
		return
	}
	result, err := h.svc.Transfers.Transfer(r.Context(), req.FromCardID, req.ToCardNumber, req.Amount)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type payLoanRequest struct {
	CardID int64           `json:"card_id"`
	Amount decimal.Decimal `json:"amount"`
}

// PayLoan repays one of the caller's loans from one of their cards
func (h *Handler) PayLoan(w http.ResponseWriter, r *http.Request) {
	id, ok := clientID(w, r)
	if !ok {
		return
	}
	loanID, err := pathID(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var req payLoanRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	loan, err := h.svc.Loans.Pay(r.Context(), id, loanID, req.CardID, req.Amount)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

// LoanSchedule returns the installment plan of one of the caller's loans
func (h *Handler) LoanSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := clientID(w, r)
	if !ok {
		return
	}
	loanID, err := pathID(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	schedule, err := h.svc.Loans.Schedule(r.Context(), id, loanID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, schedule)
}
