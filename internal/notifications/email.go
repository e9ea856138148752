package notifications

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"gopkg.in/gomail.v2"

	"github.com/leadscout/leadscout/internal/models"
)

// EmailOptions configures the SMTP digest channel
type EmailOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	To       string
}

type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailNotifier mails a digest when a job finishes
type EmailNotifier struct {
	opts   EmailOptions
	sender mailSender
}

// NewEmailNotifier creates an SMTP channel
func NewEmailNotifier(opts EmailOptions) *EmailNotifier {
	return &EmailNotifier{
		opts:   opts,
		sender: gomail.NewDialer(opts.Host, opts.Port, opts.Username, opts.Password),
	}
}

// Ensure EmailNotifier implements Channel
var _ Channel = (*EmailNotifier)(nil)

func (e *EmailNotifier) Name() string { return "email" }

// Accepts job outcomes only; per-lead mail would be too noisy
func (e *EmailNotifier) Accepts(spec *models.KeywordSearchSpec, event EventKind) bool {
	return e.opts.To != "" && (event == EventJobCompleted || event == EventJobFailed)
}

func (e *EmailNotifier) Send(ctx context.Context, spec *models.KeywordSearchSpec, event EventKind, payload interface{}) error {
	summary, ok := payload.(*models.JobSummary)
	if !ok {
		return fmt.Errorf("email digest needs a job summary, got %T", payload)
	}

	htmlBody, err := buildDigestHTML(spec, summary)
	if err != nil {
		return fmt.Errorf("failed to build email HTML: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", e.opts.Username)
	m.SetHeader("To", e.opts.To)
	m.SetHeader("Subject", digestSubject(spec, event, summary))
	m.SetBody("text/plain", buildDigestText(spec, summary))
	m.AddAlternative("text/html", htmlBody)

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.sender.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

func digestSubject(spec *models.KeywordSearchSpec, event EventKind, summary *models.JobSummary) string {
	if event == EventJobFailed {
		return fmt.Sprintf("[leadscout] %s: job failed", spec.Name)
	}
	return fmt.Sprintf("[leadscout] %s: %d new leads", spec.Name, summary.Counts.LeadsCreated)
}

var digestTemplate = template.Must(template.New("digest").Parse(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Leadscout job report</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        .header { background-color: #1f6feb; color: white; padding: 20px; border-radius: 5px; }
        .failed { background-color: #d13438; }
        .summary { background-color: #f5f5f5; padding: 15px; margin: 20px 0; border-radius: 5px; }
        .item-error { color: #666; font-size: 0.9em; }
    </style>
</head>
<body>
    <div class="header{{if eq .Summary.State "failed"}} failed{{end}}">
        <h1>{{.Spec.Name}}</h1>
        <p>Job {{.Summary.JobID}} {{.Summary.State}} ({{.Summary.Trigger}}) in {{.Summary.Duration}}</p>
    </div>

    {{if .Summary.Cause}}<p><strong>Cause:</strong> {{.Summary.Cause}}</p>{{end}}

    <div class="summary">
        <h2>Summary</h2>
        <p><strong>Fetched:</strong> {{.Summary.Counts.Fetched}}</p>
        <p><strong>Already seen:</strong> {{.Summary.Counts.Deduplicated}}</p>
        <p><strong>Analyzed:</strong> {{.Summary.Counts.Analyzed}}</p>
        <p><strong>New leads:</strong> {{.Summary.Counts.LeadsCreated}}</p>
        <p><strong>Updated leads:</strong> {{.Summary.Counts.LeadsUpdated}}</p>
        <p><strong>Errors:</strong> {{.Summary.Counts.Errors}}</p>
    </div>

    {{if .Summary.ItemErrors}}
    <h2>Item errors</h2>
    {{range $i, $e := .Summary.ItemErrors}}{{if lt $i 10}}
        <p class="item-error">{{$e.SourceID}} ({{$e.Stage}}): {{$e.Message}}</p>
    {{end}}{{end}}
    {{end}}
</body>
</html>
`))

func buildDigestHTML(spec *models.KeywordSearchSpec, summary *models.JobSummary) (string, error) {
	var buf bytes.Buffer
	err := digestTemplate.Execute(&buf, struct {
		Spec    *models.KeywordSearchSpec
		Summary *models.JobSummary
	}{spec, summary})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

func buildDigestText(spec *models.KeywordSearchSpec, summary *models.JobSummary) string {
	var text strings.Builder

	text.WriteString(fmt.Sprintf("%s - job %s %s\n", spec.Name, summary.JobID, summary.State))
	text.WriteString(fmt.Sprintf("Started: %s\n", summary.StartedAt.Format("2006-01-02 15:04:05 UTC")))
	text.WriteString(fmt.Sprintf("Duration: %s\n", summary.Duration))
	if summary.Cause != "" {
		text.WriteString(fmt.Sprintf("Cause: %s\n", summary.Cause))
	}

	text.WriteString("\nSUMMARY\n")
	text.WriteString("=======\n")
	text.WriteString(fmt.Sprintf("Fetched: %d\n", summary.Counts.Fetched))
	text.WriteString(fmt.Sprintf("Already seen: %d\n", summary.Counts.Deduplicated))
	text.WriteString(fmt.Sprintf("Analyzed: %d\n", summary.Counts.Analyzed))
	text.WriteString(fmt.Sprintf("New leads: %d\n", summary.Counts.LeadsCreated))
	text.WriteString(fmt.Sprintf("Updated leads: %d\n", summary.Counts.LeadsUpdated))
	text.WriteString(fmt.Sprintf("Errors: %d\n", summary.Counts.Errors))

	return text.String()
}
