// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package mfa

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image/png"

	"codeberg.org/oliverandrich/go-auth-service/internal/models"
	"codeberg.org/oliverandrich/go-auth-service/internal/repository"
	"codeberg.org/oliverandrich/go-auth-service/internal/services/recovery"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Setup is what an authenticator app needs to enroll. It is shown once.
type Setup struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
	QRCode          string `json:"qr_code"`
}

// BeginSetup creates a pending TOTP secret for p after re-proof. Any
// previous pending secret and all recovery codes are discarded. MFA stays
// disabled until ConfirmSetup.
func (s *Service) BeginSetup(ctx context.Context, p *models.Principal, sess *models.Session, proof string) (*Setup, error) {
	if err := s.credentials.VerifyProof(p, sess, proof); err != nil {
		return nil, err
	}
	fresh, err := s.reload(ctx, p)
	if err != nil {
		return nil, err
	}
	if fresh.MFAEnabled {
		return nil, ErrMfaAlreadyEnabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: fresh.Email,
		Period:      period,
		SecretSize:  secretSize,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate totp key: %w", err)
	}

	err = s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		if err := tx.SetMFASecret(ctx, fresh.ID, key.Secret()); err != nil {
			return err
		}
		return tx.DeleteRecoveryCodes(ctx, fresh.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store totp secret: %w", err)
	}

	qr, err := qrDataURI(key)
	if err != nil {
		return nil, err
	}

	return &Setup{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
		QRCode:          qr,
	}, nil
}

// ConfirmSetup enables MFA when code matches the pending secret and returns
// a fresh set of recovery codes in plaintext. They are never shown again.
func (s *Service) ConfirmSetup(ctx context.Context, p *models.Principal, code string) ([]string, error) {
	fresh, err := s.reload(ctx, p)
	if err != nil {
		return nil, err
	}
	if fresh.MFAEnabled {
		return nil, ErrMfaAlreadyEnabled
	}
	if fresh.MFASecret == nil {
		return nil, ErrMfaNotConfigured
	}
	if !s.validTOTP(*fresh.MFASecret, code) {
		return nil, ErrMfaCodeInvalid
	}

	codes, hashes, err := s.recovery.GenerateCodes(recovery.CodeCount)
	if err != nil {
		return nil, err
	}

	err = s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		enabled, err := tx.EnableMFA(ctx, fresh.ID, s.now())
		if err != nil {
			return err
		}
		if !enabled {
			return ErrMfaAlreadyEnabled
		}
		return tx.ReplaceRecoveryCodes(ctx, fresh.ID, hashes)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enable mfa: %w", err)
	}
	return codes, nil
}

// Disable removes the enrollment and all recovery codes after re-proof.
func (s *Service) Disable(ctx context.Context, p *models.Principal, sess *models.Session, proof string) error {
	if err := s.credentials.VerifyProof(p, sess, proof); err != nil {
		return err
	}
	fresh, err := s.reload(ctx, p)
	if err != nil {
		return err
	}
	if !fresh.MFAEnabled && fresh.MFASecret == nil {
		return ErrMfaNotConfigured
	}

	err = s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		if err := tx.ClearMFA(ctx, fresh.ID); err != nil {
			return err
		}
		return tx.DeleteRecoveryCodes(ctx, fresh.ID)
	})
	if err != nil {
		return fmt.Errorf("failed to disable mfa: %w", err)
	}
	return nil
}

// RegenerateRecoveryCodes replaces the whole recovery code set.
func (s *Service) RegenerateRecoveryCodes(ctx context.Context, p *models.Principal) ([]string, error) {
	fresh, err := s.reload(ctx, p)
	if err != nil {
		return nil, err
	}
	if !fresh.MFAEnabled {
		return nil, ErrMfaNotConfigured
	}

	codes, hashes, err := s.recovery.GenerateCodes(recovery.CodeCount)
	if err != nil {
		return nil, err
	}
	if err := s.repo.ReplaceRecoveryCodes(ctx, fresh.ID, hashes); err != nil {
		return nil, fmt.Errorf("failed to store recovery codes: %w", err)
	}
	return codes, nil
}

func qrDataURI(key *otp.Key) (string, error) {
	img, err := key.Image(qrSize, qrSize)
	if err != nil {
		return "", fmt.Errorf("failed to render qr code: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode qr code: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
