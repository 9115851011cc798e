package documents

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/aldoetobex/facility-services-backend/internal/storage"
	"github.com/aldoetobex/facility-services-backend/pkg/models"
)

// Renderer produces a printable contract summary and stores it alongside the
// contract's other documents.
type Renderer struct {
	store *storage.Supabase
}

func NewRenderer(store *storage.Supabase) *Renderer {
	return &Renderer{store: store}
}

const summaryKey = "summary.html"

var summaryTmpl = template.Must(template.New("summary").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Number}}</title></head>
<body>
  <h1>Service Contract {{.Number}}</h1>
  <p><strong>Client:</strong> {{.ClientName}} ({{.ClientEmail}})</p>
  <p><strong>Status:</strong> {{.Status}}</p>
  <p><strong>Start date:</strong> {{.StartDate}}</p>
  {{if .EndDate}}<p><strong>End date:</strong> {{.EndDate}}</p>{{end}}
  <p><strong>Payment:</strong> {{.Amount}} USD, {{.PaymentFrequency}}</p>
  <p><strong>Service frequency:</strong> {{.ServiceFrequency}}</p>
  {{if .WorkDays}}<p><strong>Work days:</strong> {{.WorkDays}}</p>{{end}}
  {{if .Scope}}<h2>Scope</h2><p>{{.Scope}}</p>{{end}}
  {{if .Terms}}<h2>Terms</h2><p>{{.Terms}}</p>{{end}}
</body>
</html>
`))

type summaryData struct {
	Number           string
	ClientName       string
	ClientEmail      string
	Status           string
	StartDate        string
	EndDate          string
	Amount           string
	PaymentFrequency string
	ServiceFrequency string
	WorkDays         string
	Scope            string
	Terms            string
}

// Render fills the summary template for a contract.
func Render(c *models.Contract, client *models.User) ([]byte, error) {
	data := summaryData{
		Number:           c.ContractNumber,
		ClientName:       client.Name,
		ClientEmail:      client.Email,
		Status:           string(c.Status),
		StartDate:        c.StartDate.Format("2006-01-02"),
		Amount:           c.PaymentAmount.StringFixed(2),
		PaymentFrequency: string(c.PaymentFrequency),
		ServiceFrequency: string(c.ServiceFrequency),
		WorkDays:         strings.Join(c.WorkDays, ", "),
		Scope:            c.Scope,
		Terms:            c.Terms,
	}
	if c.EndDate != nil {
		data.EndDate = c.EndDate.Format("2006-01-02")
	}

	var buf bytes.Buffer
	if err := summaryTmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render contract summary: %w", err)
	}
	return buf.Bytes(), nil
}

// Store renders the summary and uploads it to storage, returning the object
// key. Re-running overwrites nothing: upload errors on an existing key are
// surfaced so the caller can decide whether the existing copy is fine.
func (r *Renderer) Store(c *models.Contract, client *models.User) (string, error) {
	body, err := Render(c, client)
	if err != nil {
		return "", err
	}
	key := r.store.MakeObjectKey(c.ID.String(), summaryKey)
	if err := r.store.Upload(key, bytes.NewReader(body), "text/html", int64(len(body))); err != nil {
		return "", err
	}
	return key, nil
}

// SignedURL returns a short-lived link to the stored summary.
func (r *Renderer) SignedURL(c *models.Contract, expiresInSeconds int) (string, error) {
	key := r.store.MakeObjectKey(c.ID.String(), summaryKey)
	return r.store.SignedURL(key, expiresInSeconds)
}
