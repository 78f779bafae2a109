package services

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/smtp"
	"strings"
	"time"

	"github.com/mailgun/mailgun-go/v4"

	"github.com/m-tsaryk/InvestTax.Calculator/src/config"
	"github.com/m-tsaryk/InvestTax.Calculator/src/logger"
)

type EmailService interface {
	SendReportEmail(toEmail, jobID string, year int, report string) error
	SendFailureEmail(toEmail, jobID string, year int, stage, errorMessage string) error
}

func NewEmailService() EmailService {
	if config.Cfg == nil {
		slog.Error("Configuration (config.Cfg) is nil. Email service will default to mock.")
		return &MockEmailService{}
	}

	provider := strings.ToLower(config.Cfg.EmailServiceProvider)
	logger.L.Info("Initializing email service", "provider", provider)

	switch provider {
	case "mailgun":
		if config.Cfg.MailgunDomain == "" || config.Cfg.MailgunPrivateAPIKey == "" || config.Cfg.SenderEmail == "" {
			logger.L.Warn("Mailgun configuration incomplete (Domain, API Key, or SenderEmail missing). Falling back to MockEmailService.")
			return &MockEmailService{}
		}
		mg := mailgun.NewMailgun(config.Cfg.MailgunDomain, config.Cfg.MailgunPrivateAPIKey)
		logger.L.Info("Mailgun client initialized", "domain", config.Cfg.MailgunDomain)
		return &MailgunEmailService{
			mg:          mg,
			senderEmail: config.Cfg.SenderEmail,
			senderName:  config.Cfg.SenderName,
		}
	case "smtp":
		if config.Cfg.SMTPServer == "" || config.Cfg.SMTPUser == "" || config.Cfg.SMTPPassword == "" || config.Cfg.SenderEmail == "" {
			logger.L.Warn("SMTP configuration incomplete. Falling back to MockEmailService.")
			return &MockEmailService{}
		}
		return &SMTPEmailService{
			SMTPServer:   config.Cfg.SMTPServer,
			SMTPPort:     config.Cfg.SMTPPort,
			SMTPUser:     config.Cfg.SMTPUser,
			SMTPPassword: config.Cfg.SMTPPassword,
			SenderEmail:  config.Cfg.SenderEmail,
		}
	default:
		logger.L.Info("Defaulting to MockEmailService.")
		return &MockEmailService{}
	}
}

func reportEmailSubject(year int) string {
	return fmt.Sprintf("Your Polish Capital Gains Tax Report for %d", year)
}

func failureEmailSubject(year int) string {
	return fmt.Sprintf("Tax Calculation Failed - %d", year)
}

func reportEmailText(year int, jobID, report string) string {
	return fmt.Sprintf(`INVESTTAX CALCULATOR - TAX CALCULATION COMPLETE

Polish Capital Gains Tax Report - %d
Job ID: %s
Status: Successfully completed

Your tax calculation has been completed successfully. Please review the detailed report below:

%s

NEXT STEPS:
- Review the calculations carefully
- Consult with a tax professional before filing
- Use this report as reference for your PIT-38 form
- Keep this email for your records

DISCLAIMER:
This report is provided for informational purposes only and does not constitute tax advice.

InvestTax Calculator - Polish Capital Gains Tax Calculation Tool
`, year, jobID, report)
}

func reportEmailHTML(year int, jobID, report string) string {
	return fmt.Sprintf(`
	<html>
		<body style="font-family: Arial, sans-serif; line-height: 1.6;">
			<h2>Polish Capital Gains Tax Report - %d</h2>
			<p><strong>Job ID:</strong> %s</p>
			<p><strong>Status:</strong> Successfully completed</p>
			<p>Your tax calculation has been completed successfully. Please review the detailed report below:</p>
			<pre style="background-color: #f9f9f9; padding: 15px; border: 1px solid #ddd; font-size: 12px; white-space: pre-wrap;">%s</pre>
			<p><strong>Disclaimer:</strong> This report is provided for informational purposes only and does not constitute tax advice.</p>
			<p><em>InvestTax Calculator - Polish Capital Gains Tax Calculation Tool</em></p>
		</body>
	</html>`, year, jobID, html.EscapeString(report))
}

func failureEmailText(year int, jobID, stage, errorMessage string) string {
	return fmt.Sprintf(`INVESTTAX CALCULATOR - PROCESSING FAILED

Polish Capital Gains Tax Report - %d
Job ID: %s
Status: Failed at %s stage

ERROR DETAILS:
%s

WHAT TO DO NEXT:
- Check that your CSV file follows the required format
- Ensure all required columns are present and properly formatted
- Confirm that currency codes are supported (USD, EUR, GBP, etc.)
- Make sure ISIN codes are exactly 12 characters
- Note that you cannot sell more shares than you purchased

If you continue to experience issues, please check your CSV file format and try again.

InvestTax Calculator - Polish Capital Gains Tax Calculation Tool
`, year, jobID, stage, errorMessage)
}

func failureEmailHTML(year int, jobID, stage, errorMessage string) string {
	return fmt.Sprintf(`
	<html>
		<body style="font-family: Arial, sans-serif; line-height: 1.6;">
			<h2>Processing Error - %d</h2>
			<p><strong>Job ID:</strong> %s</p>
			<p><strong>Status:</strong> Failed at %s stage</p>
			<div style="background-color: #ffebee; padding: 15px; border-left: 4px solid #f44336;">
				<h3>Error Details</h3>
				<p>%s</p>
			</div>
			<p>Please check your CSV file format and try again.</p>
			<p><em>InvestTax Calculator - Polish Capital Gains Tax Calculation Tool</em></p>
		</body>
	</html>`, year, jobID, html.EscapeString(stage), html.EscapeString(errorMessage))
}

type SMTPEmailService struct {
	SMTPServer   string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SenderEmail  string
}

func (s *SMTPEmailService) SendReportEmail(toEmail, jobID string, year int, report string) error {
	body := reportEmailText(year, jobID, report)
	if err := s.send(toEmail, reportEmailSubject(year), body); err != nil {
		logger.L.Error("Failed to send report email via SMTP", "error", err, "to", toEmail, "jobID", jobID)
		return fmt.Errorf("failed to send report email via SMTP: %w", err)
	}
	logger.L.Info("Report email sent successfully via SMTP", "to", toEmail, "jobID", jobID)
	return nil
}

func (s *SMTPEmailService) SendFailureEmail(toEmail, jobID string, year int, stage, errorMessage string) error {
	body := failureEmailText(year, jobID, stage, errorMessage)
	if err := s.send(toEmail, failureEmailSubject(year), body); err != nil {
		logger.L.Error("Failed to send failure email via SMTP", "error", err, "to", toEmail, "jobID", jobID)
		return fmt.Errorf("failed to send failure email via SMTP: %w", err)
	}
	logger.L.Info("Failure email sent successfully via SMTP", "to", toEmail, "jobID", jobID)
	return nil
}

func (s *SMTPEmailService) send(toEmail, subject, body string) error {
	header := make(map[string]string)
	header["From"] = s.SenderEmail
	header["To"] = toEmail
	header["Subject"] = subject
	header["MIME-version"] = "1.0"
	header["Content-Type"] = "text/plain; charset=\"UTF-8\""

	message := ""
	for k, v := range header {
		message += fmt.Sprintf("%s: %s\r\n", k, v)
	}
	message += "\r\n" + body

	auth := smtp.PlainAuth("", s.SMTPUser, s.SMTPPassword, s.SMTPServer)
	addr := fmt.Sprintf("%s:%d", s.SMTPServer, s.SMTPPort)
	return smtp.SendMail(addr, auth, s.SenderEmail, []string{toEmail}, []byte(message))
}

type MailgunEmailService struct {
	mg          mailgun.Mailgun
	senderEmail string
	senderName  string
}

func (s *MailgunEmailService) SendReportEmail(toEmail, jobID string, year int, report string) error {
	from := fmt.Sprintf("%s <%s>", s.senderName, s.senderEmail)
	message := s.mg.NewMessage(from, reportEmailSubject(year), reportEmailText(year, jobID, report), toEmail)
	message.SetHtml(reportEmailHTML(year, jobID, report))
	message.AddTag("tax-report")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*20)
	defer cancel()

	resp, id, err := s.mg.Send(ctx, message)
	if err != nil {
		logger.L.Error("Failed to send report email via Mailgun", "error", err, "to", toEmail, "mailgunResp", resp, "mailgunId", id)
		return fmt.Errorf("mailgun send failed: %w. Response: %s", err, resp)
	}
	logger.L.Info("Report email sent successfully via Mailgun", "to", toEmail, "id", id, "jobID", jobID)
	return nil
}

func (s *MailgunEmailService) SendFailureEmail(toEmail, jobID string, year int, stage, errorMessage string) error {
	from := fmt.Sprintf("%s <%s>", s.senderName, s.senderEmail)
	message := s.mg.NewMessage(from, failureEmailSubject(year), failureEmailText(year, jobID, stage, errorMessage), toEmail)
	message.SetHtml(failureEmailHTML(year, jobID, stage, errorMessage))
	message.AddTag("calculation-failed")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*20)
	defer cancel()

	resp, id, err := s.mg.Send(ctx, message)
	if err != nil {
		logger.L.Error("Failed to send failure email via Mailgun", "error", err, "to", toEmail, "mailgunResp", resp, "mailgunId", id)
		return fmt.Errorf("mailgun send failed for failure notice: %w. Response: %s", err, resp)
	}
	logger.L.Info("Failure email sent successfully via Mailgun", "to", toEmail, "id", id, "jobID", jobID)
	return nil
}

type MockEmailService struct{}

func (m *MockEmailService) SendReportEmail(toEmail, jobID string, year int, report string) error {
	logger.L.Info("MockEmailService: Would send report email.", "to", toEmail, "jobID", jobID, "year", year, "reportBytes", len(report))
	return nil
}

func (m *MockEmailService) SendFailureEmail(toEmail, jobID string, year int, stage, errorMessage string) error {
	logger.L.Info("MockEmailService: Would send failure email.", "to", toEmail, "jobID", jobID, "year", year, "stage", stage, "error", errorMessage)
	return nil
}
