package email

import (
	"fmt"
	"net/smtp"
	"time"

	"github.com/Dan9191/bank-core/internal/config"
	"github.com/Dan9191/bank-core/internal/models"
	"github.com/Dan9191/bank-core/internal/money"
	"github.com/jordan-wright/email"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// sendFunc delivers a composed message; replaced in tests
type sendFunc func(e *email.Email) error

// Sender handles sending emails via SMTP
type Sender struct {
	cfg    *config.Config
	logger *logrus.Logger
	send   sendFunc
}

// NewSender creates a new email sender
func NewSender(cfg *config.Config, logger *logrus.Logger) *Sender {
	s := &Sender{
		cfg:    cfg,
		logger: logger,
	}
	s.send = s.smtpSend
	return s
}

func (s *Sender) smtpSend(e *email.Email) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPHost, s.cfg.SMTPPort)
	auth := smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	return e.Send(addr, auth)
}

func (s *Sender) deliver(to, subject, body string) error {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{to}
	e.Subject = subject
	e.Text = []byte(body + "\nBest regards,\nBank Core")

	if err := s.send(e); err != nil {
		s.logger.Errorf("Failed to send email to %s: %v", to, err)
		return fmt.Errorf("failed to send email: %w", err)
	}
	s.logger.Infof("Email sent to %s: %s", to, e.Subject)
	return nil
}

// SendLoanIssued tells a client a loan was disbursed to their card
func (s *Sender) SendLoanIssued(to, name string, loan models.Loan) error {
	body := fmt.Sprintf("Dear %s,\n\n", name)
	body += fmt.Sprintf(
		"Your loan #%d of %s RUB has been credited to your card.\n"+
			"Interest rate: %s%% per year, term: %d months.\n"+
			"Monthly payment: %s RUB, total to repay: %s RUB.\n"+
			"Final payment date: %s.\n",
		loan.ID, money.Format(loan.PrincipalAmount),
		loan.InterestRate.Mul(decimal.NewFromInt(100)).String(), loan.TermMonths,
		money.Format(loan.MonthlyPayment), money.Format(loan.TotalAmountToRepay),
		loan.EndDate.Format("2006-01-02"),
	)
	return s.deliver(to, "Your Loan Has Been Issued", body)
}

// SendPaymentReminder sends a payment reminder email
func (s *Sender) SendPaymentReminder(to, name string, paymentDate time.Time, amount decimal.Decimal) error {
	body := fmt.Sprintf("Dear %s,\n\n", name)
	body += fmt.Sprintf(
		"This is a reminder that your credit payment of %s RUB is due on %s.\n"+
			"Please ensure sufficient funds are available on your card.\n",
		money.Format(amount), paymentDate.Format("2006-01-02"),
	)
	return s.deliver(to, "Upcoming Credit Payment Reminder", body)
}
