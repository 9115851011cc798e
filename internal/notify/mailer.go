package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/shopspring/decimal"
)

/*
Mailer wraps a minimal transactional-mail REST API (POST {MAIL_API_URL}/send).
All sends are best effort: callers fire them after a transaction commits and
only log failures. A missing MAIL_API_URL disables sending entirely, which is
the normal state in local development and tests.
*/

type Mailer struct {
	baseURL string // e.g. https://api.mailprovider.example
	apiKey  string
	from    string
	client  *http.Client
}

func NewMailer() *Mailer {
	return &Mailer{
		baseURL: os.Getenv("MAIL_API_URL"),
		apiKey:  os.Getenv("MAIL_API_KEY"),
		from:    os.Getenv("MAIL_FROM"),
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// Enabled reports whether a provider is configured.
func (m *Mailer) Enabled() bool { return m.baseURL != "" }

// Send posts a single message to the provider. Body is plain text.
func (m *Mailer) Send(to, subject, body string) error {
	if !m.Enabled() {
		return nil
	}

	payload, _ := json.Marshal(map[string]string{
		"from":    m.from,
		"to":      to,
		"subject": subject,
		"text":    body,
	})
	req, err := http.NewRequest(http.MethodPost, m.baseURL+"/send", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	res, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		b, _ := io.ReadAll(res.Body)
		return fmt.Errorf("mail send error: %s | %s", res.Status, string(b))
	}
	return nil
}

// send logs instead of returning; notification failures never bubble up into
// request handling.
func (m *Mailer) send(to, subject, body string) {
	if err := m.Send(to, subject, body); err != nil {
		log.Printf("notify: send to %s failed: %v", to, err)
	}
}

/* =========================== Domain messages ============================ */

// SendWelcome delivers generated credentials to a first-time customer.
func (m *Mailer) SendWelcome(to, name, tempPassword string) {
	body := fmt.Sprintf(
		"Hi %s,\n\nAn account was created for you so you can track your service contract.\n\nEmail: %s\nTemporary password: %s\n\nPlease log in and change your password.",
		name, to, tempPassword,
	)
	m.send(to, "Your account is ready", body)
}

// SendApprovalConfirmation tells the customer their request became a contract.
func (m *Mailer) SendApprovalConfirmation(to, name, contractNumber string, startDate time.Time) {
	body := fmt.Sprintf(
		"Hi %s,\n\nYour service request was approved. Contract %s starts on %s.",
		name, contractNumber, startDate.Format("2006-01-02"),
	)
	m.send(to, "Service request approved", body)
}

// SendPaymentLink asks the customer to complete a pending payment.
func (m *Mailer) SendPaymentLink(to, name string, amount decimal.Decimal, dueDate time.Time, url string) {
	body := fmt.Sprintf(
		"Hi %s,\n\nA payment of %s USD is due on %s.\n\nPay here: %s",
		name, amount.StringFixed(2), dueDate.Format("2006-01-02"), url,
	)
	m.send(to, "Payment due", body)
}

// SendPaymentReceipt confirms a successful charge.
func (m *Mailer) SendPaymentReceipt(to, name, reference string, amount decimal.Decimal) {
	body := fmt.Sprintf(
		"Hi %s,\n\nWe received your payment of %s USD (reference %s). Thank you.",
		name, amount.StringFixed(2), reference,
	)
	m.send(to, "Payment received", body)
}

// SendPaymentFailed notifies the customer that a charge did not go through.
func (m *Mailer) SendPaymentFailed(to, name, reference, reason string) {
	body := fmt.Sprintf(
		"Hi %s,\n\nYour payment (reference %s) failed: %s\n\nPlease retry from your dashboard.",
		name, reference, reason,
	)
	m.send(to, "Payment failed", body)
}
