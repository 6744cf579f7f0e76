package service

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"kiddoquest/internal/logger"
	"kiddoquest/internal/models"
)

// sesClient is the part of the SES API the digest mailer uses
type sesClient interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// EmailService sends report digests via Amazon SES
type EmailService struct {
	client     sesClient
	fromEmail  string
	fromName   string
	appBaseURL string
	enabled    bool
	log        *logger.Logger
}

// NewEmailService creates a new email service. An empty fromEmail yields a
// disabled service that drops every message.
func NewEmailService(ctx context.Context, awsRegion, fromEmail, fromName, appBaseURL string, log *logger.Logger) (*EmailService, error) {
	if log == nil {
		log = logger.Nop()
	}
	if fromEmail == "" {
		log.Info("Email service disabled: SES_FROM_EMAIL not configured")
		return &EmailService{enabled: false, log: log}, nil
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(awsRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	log.Info("Email service enabled", "from", fromEmail, "region", awsRegion)
	return newEmailService(sesv2.NewFromConfig(cfg), fromEmail, fromName, appBaseURL, log), nil
}

func newEmailService(client sesClient, fromEmail, fromName, appBaseURL string, log *logger.Logger) *EmailService {
	return &EmailService{
		client:     client,
		fromEmail:  fromEmail,
		fromName:   fromName,
		appBaseURL: appBaseURL,
		enabled:    true,
		log:        log,
	}
}

// IsEnabled returns whether the email service is enabled
func (s *EmailService) IsEnabled() bool {
	return s != nil && s.enabled
}

// SendReportDigest mails a report summary to one guardian
func (s *EmailService) SendReportDigest(ctx context.Context, to models.FamilyMember, family *models.Family, report *models.AnalyticsReport) error {
	if !s.IsEnabled() {
		return nil
	}
	if to.Email == "" {
		return nil
	}
	subject, htmlBody, textBody := renderDigest(to, family, report, s.appBaseURL)
	return s.sendEmail(ctx, to.Email, subject, htmlBody, textBody)
}

func renderDigest(to models.FamilyMember, family *models.Family, report *models.AnalyticsReport, baseURL string) (subject, htmlBody, textBody string) {
	familyName := "your family"
	if family != nil && family.Name != "" {
		familyName = family.Name
	}
	period := report.StartDate.Format("Jan 2") + " - " + report.EndDate.AddDate(0, 0, -1).Format("Jan 2, 2006")
	subject = fmt.Sprintf("Kiddo Quest %s report for %s", report.ReportType, familyName)

	m := report.Metrics
	lines := []string{
		fmt.Sprintf("Quests completed: %d", m.QuestsCompleted),
		fmt.Sprintf("XP earned: %d", m.XPEarned),
		fmt.Sprintf("Rewards redeemed: %d (%d XP)", m.RewardsRedeemed, m.XPSpent),
		fmt.Sprintf("Penalties applied: %d", m.PenaltiesApplied),
	}
	if m.MostProductiveDay != "" {
		lines = append(lines, "Most productive day: "+m.MostProductiveDay)
	}

	var text strings.Builder
	fmt.Fprintf(&text, "Hi %s,\n\nHere is the activity summary for %s (%s).\n\n", to.Name, familyName, period)
	for _, l := range lines {
		text.WriteString("- " + l + "\n")
	}
	if len(report.Insights) > 0 {
		text.WriteString("\nInsights:\n")
		for _, in := range report.Insights {
			fmt.Fprintf(&text, "- [%s] %s\n", in.Priority, in.Message)
		}
	}
	if baseURL != "" {
		fmt.Fprintf(&text, "\nFull report: %s/reports/%s\n", strings.TrimRight(baseURL, "/"), report.ID)
	}

	var body strings.Builder
	fmt.Fprintf(&body, "<p>Hi %s,</p><p>Here is the activity summary for <strong>%s</strong> (%s).</p><ul>",
		html.EscapeString(to.Name), html.EscapeString(familyName), html.EscapeString(period))
	for _, l := range lines {
		body.WriteString("<li>" + html.EscapeString(l) + "</li>")
	}
	body.WriteString("</ul>")
	if len(report.Insights) > 0 {
		body.WriteString("<h3>Insights</h3><ul>")
		for _, in := range report.Insights {
			fmt.Fprintf(&body, "<li><em>%s</em> %s</li>", html.EscapeString(in.Priority), html.EscapeString(in.Message))
		}
		body.WriteString("</ul>")
	}
	if baseURL != "" {
		link := strings.TrimRight(baseURL, "/") + "/reports/" + report.ID
		fmt.Fprintf(&body, `<p><a href="%s">View the full report</a></p>`, html.EscapeString(link))
	}
	return subject, body.String(), text.String()
}

// sendEmail sends an email using Amazon SES
func (s *EmailService) sendEmail(ctx context.Context, toEmail, subject, htmlBody, textBody string) error {
	fromAddress := s.fromEmail
	if s.fromName != "" {
		fromAddress = fmt.Sprintf("%s <%s>", s.fromName, s.fromEmail)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{toEmail},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &types.Body{
					Html: &types.Content{
						Data:    aws.String(htmlBody),
						Charset: aws.String("UTF-8"),
					},
					Text: &types.Content{
						Data:    aws.String(textBody),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send email to %s: %w", toEmail, err)
	}

	messageID := ""
	if result.MessageId != nil {
		messageID = *result.MessageId
	}
	s.log.Info("Email sent", "to", toEmail, "subject", subject, "message_id", messageID)
	return nil
}
