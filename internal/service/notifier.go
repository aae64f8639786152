package service

import (
	"context"
	"fmt"
	"net/url"

	"accounthub/internal/model"
	"accounthub/pkg/mail"
	"accounthub/pkg/resettoken"
)

// setPasswordNotifier 签发找回密码令牌并发送设置密码邮件
type setPasswordNotifier struct {
	frontendURL string
	tokens      *resettoken.Generator
	mailer      mail.Mailer
}

func newSetPasswordNotifier(frontendURL string, tokens *resettoken.Generator, mailer mail.Mailer) *setPasswordNotifier {
	return &setPasswordNotifier{frontendURL: frontendURL, tokens: tokens, mailer: mailer}
}

func (n *setPasswordNotifier) Send(ctx context.Context, user *model.User) error {
	link, err := n.link(n.tokens.Make(resetSubject(user)), user.Email)
	if err != nil {
		return err
	}
	return n.mailer.SendSetPassword(ctx, mail.SetPasswordMessage{
		To:       user.Email,
		Username: user.Username,
		Link:     link,
	})
}

// link 生成 <frontend_url>?token=...&email=...
func (n *setPasswordNotifier) link(token, email string) (string, error) {
	u, err := url.Parse(n.frontendURL)
	if err != nil {
		return "", fmt.Errorf("frontend_url 无效: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	q.Set("email", email)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func resetSubject(user *model.User) resettoken.Subject {
	return resettoken.Subject{
		UserID:       user.ID,
		PasswordHash: user.PasswordHash,
		Email:        user.Email,
	}
}
