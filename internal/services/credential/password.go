// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package credential

import (
	"bufio"
	"bytes"
	_ "embed"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

// Password rules. A WeakPasswordError lists the ones a password broke.
const (
	RuleTooShort = "too_short"
	RuleNumeric  = "numeric"
	RuleCommon   = "common"
	RuleSimilar  = "similar"
)

// similarityLimit is the share of a personal attribute a password may
// reuse before it counts as derived from it.
const similarityLimit = 0.7

//go:embed common_passwords.txt
var commonPasswordList []byte

var blocklist = sync.OnceValue(func() map[string]struct{} {
	set := make(map[string]struct{})
	sc := bufio.NewScanner(bytes.NewReader(commonPasswordList))
	for sc.Scan() {
		if pw := strings.ToLower(strings.TrimSpace(sc.Text())); pw != "" {
			set[pw] = struct{}{}
		}
	}
	return set
})

// WeakPasswordError is returned for a password that breaks the policy.
type WeakPasswordError struct {
	Rules     []string
	MinLength int
}

func (e *WeakPasswordError) Error() string {
	return "weak password: " + strings.Join(e.Rules, ", ")
}

// PasswordPolicy decides which passwords may be set.
type PasswordPolicy struct {
	MinLength int
	// Blocklist rejects passwords from the embedded list of common ones.
	Blocklist bool
}

// DefaultPasswordPolicy is the registration policy: at least eight
// characters, not numeric only, not a common password and not derived from
// the name or email.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{MinLength: 8, Blocklist: true}
}

// Check returns a *WeakPasswordError naming every broken rule, or nil.
// attributes are the principal's name and email.
func (p PasswordPolicy) Check(password string, attributes ...string) error {
	var broken []string
	if utf8.RuneCountInString(password) < p.MinLength {
		broken = append(broken, RuleTooShort)
	}
	if password != "" && strings.IndexFunc(password, func(r rune) bool { return !unicode.IsDigit(r) }) < 0 {
		broken = append(broken, RuleNumeric)
	}
	if p.Blocklist {
		if _, ok := blocklist()[strings.ToLower(password)]; ok {
			broken = append(broken, RuleCommon)
		}
	}
	if derivedFrom(password, attributes) {
		broken = append(broken, RuleSimilar)
	}

	if len(broken) == 0 {
		return nil
	}
	return &WeakPasswordError{Rules: broken, MinLength: p.MinLength}
}

// derivedFrom reports whether password contains, is contained in or mostly
// overlaps one of the attributes. Emails are compared by their local part.
func derivedFrom(password string, attributes []string) bool {
	pw := strings.ToLower(password)
	for _, attr := range attributes {
		attr = strings.ToLower(attr)
		if local, _, ok := strings.Cut(attr, "@"); ok {
			attr = local
		}
		if len(attr) < 3 || pw == "" {
			continue
		}
		if strings.Contains(pw, attr) || strings.Contains(attr, pw) {
			return true
		}
		if float64(commonSubsequence(pw, attr))/float64(max(len(pw), len(attr))) > similarityLimit {
			return true
		}
	}
	return false
}

// commonSubsequence is the length of the longest common subsequence of a
// and b, computed over bytes with a single DP row.
func commonSubsequence(a, b string) int {
	row := make([]int, len(b)+1)
	for i := range len(a) {
		diag := 0
		for j := range len(b) {
			up := row[j+1]
			if a[i] == b[j] {
				row[j+1] = diag + 1
			} else {
				row[j+1] = max(row[j+1], row[j])
			}
			diag = up
		}
	}
	return row[len(b)]
}
