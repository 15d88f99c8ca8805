// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package recovery

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// CodeLength is the number of hex digits in each code (without dashes).
	CodeLength = 16
	// CodeCount is the default number of recovery codes to generate.
	CodeCount = 8
	// groupSize is the number of hex digits between dashes.
	groupSize = 4
	// defaultCost is the cost factor for bcrypt hashing.
	defaultCost = 10
)

// Service handles recovery code generation and validation.
type Service struct {
	cost int
}

// NewService creates a new recovery service. A cost of zero keeps the default.
func NewService(cost ...int) *Service {
	s := &Service{cost: defaultCost}
	if len(cost) > 0 && cost[0] > 0 {
		s.cost = cost[0]
	}
	return s
}

// GenerateCodes generates recovery codes and their hashes.
// Returns (plaintext codes for display, hashed codes for storage, error).
// Plaintext codes look like "3f9a-07c1-be42-d815".
func (s *Service) GenerateCodes(count int) ([]string, []string, error) {
	if count <= 0 {
		count = CodeCount
	}

	plaintexts := make([]string, count)
	hashes := make([]string, count)

	for i := range count {
		code, err := generateCode()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to generate code: %w", err)
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(code), s.cost)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to hash code: %w", err)
		}

		plaintexts[i] = formatCode(code)
		hashes[i] = string(hash)
	}

	return plaintexts, hashes, nil
}

// Matches reports whether the user-supplied input matches a stored hash.
func (s *Service) Matches(hash, input string) bool {
	normalized := NormalizeCode(input)
	if len(normalized) != CodeLength {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(normalized)) == nil
}

// NormalizeCode trims whitespace, removes dashes and converts to lowercase.
func NormalizeCode(code string) string {
	code = strings.TrimSpace(code)
	code = strings.ReplaceAll(code, "-", "")
	return strings.ToLower(code)
}

// LooksLikeCode reports whether input has the shape of a recovery code
// rather than a six digit TOTP code.
func LooksLikeCode(input string) bool {
	normalized := NormalizeCode(input)
	if len(normalized) != CodeLength {
		return false
	}
	_, err := hex.DecodeString(normalized)
	return err == nil
}

func generateCode() (string, error) {
	buf := make([]byte, CodeLength/2)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// formatCode formats a code with dashes for readability.
func formatCode(code string) string {
	var parts []string
	for i := 0; i < len(code); i += groupSize {
		end := min(i+groupSize, len(code))
		parts = append(parts, code[i:end])
	}
	return strings.Join(parts, "-")
}
