package mail

import (
	"context"
	"html/template"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"accounthub/config"
)

func TestRenderSetPassword(t *testing.T) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	require.NoError(t, err)

	body, err := renderSetPassword(tmpl, SetPasswordMessage{
		To:       "test@test.com",
		Username: "test_user",
		Link:     "http://localhost:5173/set-password?token=abc-123&email=test%40test.com",
	})
	require.NoError(t, err)

	assert.Contains(t, body, "Hello test_user")
	assert.True(t, strings.Contains(body, "token=abc-123"), "邮件正文应包含设置密码链接")
}

func TestNewMailer_WithoutSMTPFallsBackToLog(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	m, err := NewMailer(&config.MailConfig{From: "from@example.com"}, logger)
	require.NoError(t, err)
	require.IsType(t, &LogMailer{}, m)

	err = m.SendSetPassword(context.Background(), SetPasswordMessage{
		To:       "test@test.com",
		Username: "test_user",
		Link:     "http://localhost/set?token=t",
	})
	require.NoError(t, err)

	entries := logs.FilterField(zap.String("to", "test@test.com")).All()
	require.Len(t, entries, 1)
	assert.Equal(t, SubjectSetPassword, entries[0].ContextMap()["subject"])
	assert.Equal(t, "from@example.com", entries[0].ContextMap()["from"])
}

func TestNewMailer_SMTP(t *testing.T) {
	m, err := NewMailer(&config.MailConfig{
		SMTPHost: "smtp.example.com",
		SMTPPort: 587,
		Username: "user",
		Password: "pass",
		From:     "from@example.com",
		UseTLS:   true,
	}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &SMTPMailer{}, m)
}
