package identity

import (
	"context"
	"fmt"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/madcrx/FADirect/internal/crypto"
	"github.com/madcrx/FADirect/internal/domain"
)

const (
	// minPassphraseLength defines the minimum number of characters required for a passphrase.
	minPassphraseLength = 12

	// DefaultPreKeyBatch is how many one-time prekeys a new key set carries.
	DefaultPreKeyBatch = 100
)

var (
	// ErrWeakPassphrase is returned when the passphrase fails the strength policy.
	ErrWeakPassphrase = fmt.Errorf(
		"passphrase is too weak (must be at least %d characters and include upper, lower, "+
			"number, and symbol)",
		minPassphraseLength,
	)

	// ErrIdentityExists is returned when keys exist and Force is not set.
	ErrIdentityExists = fmt.Errorf("%w: identity already exists", domain.ErrKeyGeneration)
)

// Options tune key generation.
type Options struct {
	// PreKeyBatch is the number of one-time prekeys generated. Zero means
	// DefaultPreKeyBatch.
	PreKeyBatch int
	// Force replaces an existing identity (re-registration).
	Force bool
}

// Service generates and publishes the local key set.
type Service struct {
	keys domain.KeyStore
	dir  domain.BundleDirectory
	log  *zap.SugaredLogger
	opts Options
	now  func() time.Time
}

// New returns a key generator persisting to keys and publishing to dir.
func New(keys domain.KeyStore, dir domain.BundleDirectory, log *zap.SugaredLogger, opts Options) *Service {
	if opts.PreKeyBatch <= 0 {
		opts.PreKeyBatch = DefaultPreKeyBatch
	}
	return &Service{keys: keys, dir: dir, log: log, opts: opts, now: time.Now}
}

// GenerateUserKeys creates a complete key set, persists it locally and then
// publishes the public projection for userID. It returns the identity
// fingerprint. Nothing is published if any local step fails.
func (s *Service) GenerateUserKeys(ctx context.Context, userID domain.UserID) (domain.Fingerprint, error) {
	exists, err := s.keys.HasIdentity()
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrKeyGeneration, err)
	}
	if exists && !s.opts.Force {
		return "", ErrIdentityExists
	}

	id, err := crypto.GenerateIdentity()
	if err != nil {
		return "", fmt.Errorf("%w: identity: %w", domain.ErrKeyGeneration, err)
	}
	regID, err := crypto.GenerateRegistrationID()
	if err != nil {
		return "", fmt.Errorf("%w: registration id: %w", domain.ErrKeyGeneration, err)
	}
	preKeys, err := crypto.GeneratePreKeys(0, s.opts.PreKeyBatch)
	if err != nil {
		return "", fmt.Errorf("%w: prekeys: %w", domain.ErrKeyGeneration, err)
	}
	spk, err := crypto.GenerateSignedPreKey(id, 0)
	if err != nil {
		return "", fmt.Errorf("%w: signed prekey: %w", domain.ErrKeyGeneration, err)
	}
	spk.CreatedAt = s.now().UTC()

	if exists {
		if err := s.discardPrevious(); err != nil {
			return "", fmt.Errorf("%w: %w", domain.ErrKeyGeneration, err)
		}
	}
	// The identity goes last: a partial failure leaves no identity, so a
	// plain retry is allowed.
	if err := s.persist(id, regID, preKeys, spk); err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrKeyGeneration, err)
	}

	pubs := make([]domain.OneTimePreKeyPublic, 0, len(preKeys))
	for _, k := range preKeys {
		pubs = append(pubs, k.PublicPart())
	}
	published := domain.PublishedKeys{
		IdentityKey:    id.Public(),
		RegistrationID: regID,
		PreKeys:        pubs,
		SignedPreKey:   spk.PublicPart(),
		CreatedAt:      spk.CreatedAt,
	}
	if err := s.dir.Publish(ctx, userID, published); err != nil {
		return "", fmt.Errorf("%w: publish: %w", domain.ErrKeyGeneration, err)
	}

	fp := crypto.IdentityFingerprint(id.Public())
	s.log.Infof("generated keys for %s (registration %d, %d prekeys, fingerprint %s)",
		userID, regID, len(preKeys), fp)
	return fp, nil
}

// Fingerprint returns the fingerprint of the local identity.
func (s *Service) Fingerprint() (domain.Fingerprint, error) {
	id, err := s.keys.IdentityKeyPair()
	if err != nil {
		return "", err
	}
	return crypto.IdentityFingerprint(id.Public()), nil
}

func (s *Service) persist(
	id domain.IdentityKeyPair,
	regID domain.RegistrationID,
	preKeys []domain.OneTimePreKey,
	spk domain.SignedPreKey,
) error {
	if err := s.keys.StoreLocalRegistrationID(regID); err != nil {
		return err
	}
	if err := s.keys.StorePreKeys(preKeys); err != nil {
		return err
	}
	if err := s.keys.StoreSignedPreKey(spk); err != nil {
		return err
	}
	return s.keys.StoreIdentityKeyPair(id)
}

// discardPrevious drops everything bound to the key set being replaced:
//
//  1. every session, since each one authenticates with the old identity;
//  2. the one-time prekeys, whose ids the new set reuses from zero;
//  3. the signed prekeys, which were signed by the old identity.
//
// Pinned peer identities are kept.
func (s *Service) discardPrevious() error {
	if err := s.keys.ClearSessions(); err != nil {
		return err
	}
	next, err := s.keys.NextPreKeyID()
	if err != nil {
		return err
	}
	for i := domain.PreKeyID(0); i < next; i++ {
		if err := s.keys.RemovePreKey(i); err != nil {
			return err
		}
	}
	spks, err := s.keys.SignedPreKeys()
	if err != nil {
		return err
	}
	for _, k := range spks {
		if err := s.keys.RemoveSignedPreKey(k.ID); err != nil {
			return err
		}
	}
	return nil
}

// CheckPassphrase enforces the passphrase policy for new vaults.
func CheckPassphrase(passphrase string) error {
	if !isSecurePassphrase(passphrase) {
		return ErrWeakPassphrase
	}
	return nil
}

// isSecurePassphrase enforces a basic strength policy.
func isSecurePassphrase(passphrase string) bool {
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	if len(passphrase) < minPassphraseLength {
		return false
	}
	for _, r := range passphrase {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			hasSymbol = true
		}
	}
	return hasUpper && hasLower && hasDigit && hasSymbol
}

// Compile-time assertion that Service implements domain.KeyGenerator.
var _ domain.KeyGenerator = (*Service)(nil)
