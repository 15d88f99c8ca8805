// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package credential_test

import (
	"testing"

	"codeberg.org/oliverandrich/go-auth-service/internal/services/credential"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordPolicy_Check(t *testing.T) {
	policy := credential.DefaultPasswordPolicy()

	tests := []struct {
		name     string
		password string
		attrs    []string
		rules    []string
	}{
		{"valid", "Passw0rd!", nil, nil},
		{"too short", "Ab1!", nil, []string{credential.RuleTooShort}},
		{"numeric", "1234567890123", nil, []string{credential.RuleNumeric}},
		{"common", "letmein", nil, []string{credential.RuleTooShort, credential.RuleCommon}},
		{"common case-insensitive", "PASSWORD123", nil, []string{credential.RuleCommon}},
		{"contains email local part", "alice-rocks-2024", []string{"alice@example.com"}, []string{credential.RuleSimilar}},
		{"mostly the name", "alxandra1", []string{"Alexandra"}, []string{credential.RuleSimilar}},
		{"short attribute ignored", "xy-unrelated-phrase", []string{"xy"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := policy.Check(tt.password, tt.attrs...)
			if tt.rules == nil {
				assert.NoError(t, err)
				return
			}
			var weak *credential.WeakPasswordError
			require.ErrorAs(t, err, &weak)
			assert.Equal(t, tt.rules, weak.Rules)
			assert.Equal(t, 8, weak.MinLength)
		})
	}
}

func TestPasswordPolicy_WithoutBlocklist(t *testing.T) {
	policy := credential.PasswordPolicy{MinLength: 4}

	assert.NoError(t, policy.Check("letmein"))
	assert.EqualError(t, policy.Check("123"), "weak password: too_short, numeric")
}
