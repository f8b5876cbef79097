package reader

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"

	apperrors "github.com/lueurxax/telegram-harvester/internal/core/errors"
)

const minPhoneLength = 10

// terminal implements auth.UserAuthenticator with configured values and
// interactive prompts as fallback.
type terminal struct {
	phone    string
	password string
	in       *bufio.Reader
	out      io.Writer
	logger   *zerolog.Logger
}

func newTerminal(phone, password string, in io.Reader, out io.Writer, logger *zerolog.Logger) *terminal {
	return &terminal{
		phone:    phone,
		password: password,
		in:       bufio.NewReader(in),
		out:      out,
		logger:   logger,
	}
}

func (t *terminal) flow() auth.Flow {
	return auth.NewFlow(t, auth.SendCodeOptions{})
}

func (t *terminal) prompt(label string) (string, error) {
	_, _ = fmt.Fprint(t.out, label)

	line, err := t.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}

	return strings.TrimSpace(line), nil
}

func (t *terminal) Code(_ context.Context, _ *tg.AuthSentCode) (string, error) {
	code, err := t.prompt("Enter code: ")
	if err != nil {
		return "", fmt.Errorf("failed to read auth code: %w", err)
	}

	return code, nil
}

func (t *terminal) Phone(_ context.Context) (string, error) {
	phone := t.phone

	if phone == "" {
		var err error

		phone, err = t.prompt("Enter phone: ")
		if err != nil {
			return "", fmt.Errorf("failed to read phone number: %w", err)
		}
	}

	phone = sanitizePhone(phone)
	t.logger.Info().Str("phone", maskPhone(phone)).Msg("Using phone number")

	if len(phone) < minPhoneLength {
		t.logger.Warn().Int("length", len(phone)).Msg("Phone number seems too short, it might be invalid. Ensure it includes country code (e.g. +1...)")
	}

	return phone, nil
}

func (t *terminal) Password(_ context.Context) (string, error) {
	if t.password != "" {
		return t.password, nil
	}

	password, err := t.prompt("Enter 2FA password: ")
	if err != nil {
		return "", fmt.Errorf("failed to read 2FA password: %w", err)
	}

	return password, nil
}

func (t *terminal) AcceptTermsOfService(_ context.Context, _ tg.HelpTermsOfService) error {
	return nil
}

func (t *terminal) SignUp(_ context.Context) (auth.UserInfo, error) {
	return auth.UserInfo{}, apperrors.ErrSignupNotSupported
}
