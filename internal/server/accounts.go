// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/pbkdf2"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// PBKDF2Iterations is the work factor for stored password hashes.
	PBKDF2Iterations = 100000

	// MinPasswordLength is the shortest password Register accepts.
	MinPasswordLength = 6

	saltSize = 16
	hashSize = 32

	// captchaPeriod is how long one captcha code stays current.
	captchaPeriod = 30
)

var (
	ErrAccountExists  = errors.New("account already exists")
	ErrBadCredentials = errors.New("invalid account or password")
	ErrBadCaptcha     = errors.New("invalid or expired captcha")
)

// =============================================================================
// ACCOUNT
// =============================================================================

// Account is one registered user of the dev backend.
type Account struct {
	ID       string
	Username string
	Email    string
	Avatar   string
	Roles    []string

	salt []byte
	hash []byte
}

// SeedAccount is an account created when the server starts.
type SeedAccount struct {
	Username string
	Email    string
	Password string
	Roles    []string
}

// =============================================================================
// DIRECTORY
// =============================================================================

// Directory holds accounts and outstanding captchas in memory.
// Safe for concurrent use.
type Directory struct {
	mu       sync.RWMutex
	accounts map[string]*Account // lower-cased username and email
	captchas map[string]string   // lower-cased account -> TOTP secret

	now func() time.Time
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		accounts: make(map[string]*Account),
		captchas: make(map[string]string),
		now:      time.Now,
	}
}

// Register creates an account. Both username and email can be used to log in.
func (d *Directory) Register(username, email, password string, roles ...string) (*Account, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	if username == "" {
		return nil, errors.New("username is required")
	}
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, fmt.Errorf("invalid email %q", email)
		}
	}
	if len(password) < MinPasswordLength {
		return nil, fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	if len(roles) == 0 {
		roles = []string{"user"}
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	acct := &Account{
		ID:       uuid.NewString(),
		Username: username,
		Email:    email,
		Roles:    roles,
		salt:     salt,
		hash:     derive(password, salt),
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.accounts[strings.ToLower(username)]; ok {
		return nil, ErrAccountExists
	}
	if email != "" {
		if _, ok := d.accounts[strings.ToLower(email)]; ok {
			return nil, ErrAccountExists
		}
		d.accounts[strings.ToLower(email)] = acct
	}
	d.accounts[strings.ToLower(username)] = acct
	return acct, nil
}

// Lookup finds an account by username or email.
func (d *Directory) Lookup(account string) (*Account, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.accounts[strings.ToLower(strings.TrimSpace(account))]
	return a, ok
}

// Authenticate checks a password.
// SECURITY: unknown accounts still pay for one key derivation so response
// time does not reveal which accounts exist.
func (d *Directory) Authenticate(account, password string) (*Account, error) {
	a, ok := d.Lookup(account)
	if !ok {
		derive(password, make([]byte, saltSize))
		return nil, ErrBadCredentials
	}
	if subtle.ConstantTimeCompare(derive(password, a.salt), a.hash) != 1 {
		return nil, ErrBadCredentials
	}
	return a, nil
}

// ============================================================================
// CAPTCHA
// ============================================================================

// IssueCaptcha returns a fresh code for account. The code is a TOTP value
// from a per-account secret, so it expires on its own.
func (d *Directory) IssueCaptcha(account string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(account))
	if key == "" {
		return "", errors.New("account is required")
	}

	k, err := totp.Generate(totp.GenerateOpts{
		Issuer:      TokenIssuerName,
		AccountName: key,
		Period:      captchaPeriod,
		Digits:      otp.DigitsSix,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate captcha: %w", err)
	}

	code, err := totp.GenerateCodeCustom(k.Secret(), d.now(), captchaOpts())
	if err != nil {
		return "", fmt.Errorf("failed to generate captcha: %w", err)
	}

	d.mu.Lock()
	d.captchas[key] = k.Secret()
	d.mu.Unlock()
	return code, nil
}

// CheckCaptcha validates code for account without consuming it. When no
// captcha was issued for the account the check passes.
func (d *Directory) CheckCaptcha(account, code string) error {
	key := strings.ToLower(strings.TrimSpace(account))

	d.mu.RLock()
	secret, ok := d.captchas[key]
	d.mu.RUnlock()
	if !ok {
		return nil
	}

	valid, err := totp.ValidateCustom(strings.TrimSpace(code), secret, d.now(), captchaOpts())
	if err != nil || !valid {
		return ErrBadCaptcha
	}
	return nil
}

// ClearCaptcha forgets the captcha issued for account.
func (d *Directory) ClearCaptcha(account string) {
	d.mu.Lock()
	delete(d.captchas, strings.ToLower(strings.TrimSpace(account)))
	d.mu.Unlock()
}

func captchaOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    captchaPeriod,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

func derive(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, PBKDF2Iterations, hashSize, sha256.New)
}
