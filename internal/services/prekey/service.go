package prekey

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/madcrx/FADirect/internal/crypto"
	"github.com/madcrx/FADirect/internal/domain"
)

// DefaultRetain is how many previous signed prekeys survive a rotation.
const DefaultRetain = 2

// Options tune prekey maintenance.
type Options struct {
	// Retain is the number of previous signed prekeys kept after rotation.
	// Zero means DefaultRetain; negative keeps none.
	Retain int
}

// Service manages one-time and signed prekeys of the local account.
type Service struct {
	keys   domain.KeyStore
	dir    domain.BundleDirectory
	log    *zap.SugaredLogger
	retain int
	now    func() time.Time
}

// New returns a prekey service over the local store and the bundle directory.
func New(keys domain.KeyStore, dir domain.BundleDirectory, log *zap.SugaredLogger, opts Options) *Service {
	retain := opts.Retain
	switch {
	case retain == 0:
		retain = DefaultRetain
	case retain < 0:
		retain = 0
	}
	return &Service{keys: keys, dir: dir, log: log, retain: retain, now: time.Now}
}

// Replenish generates n one-time prekeys with fresh ids, stores them locally
// and appends them to the published bundle. It returns how many were added.
func (s *Service) Replenish(ctx context.Context, userID domain.UserID, n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	if _, err := s.keys.IdentityKeyPair(); err != nil {
		return 0, err
	}
	start, err := s.keys.NextPreKeyID()
	if err != nil {
		return 0, err
	}
	keys, err := crypto.GeneratePreKeys(start, n)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrKeyGeneration, err)
	}
	if err := s.keys.StorePreKeys(keys); err != nil {
		return 0, err
	}

	pubs := make([]domain.OneTimePreKeyPublic, 0, len(keys))
	for _, k := range keys {
		pubs = append(pubs, k.PublicPart())
	}
	if err := s.dir.AppendPreKeys(ctx, userID, pubs); err != nil {
		return 0, err
	}
	s.log.Infof("published %d one-time prekeys for %s starting at %d", n, userID, start)
	return n, nil
}

// ReplenishIfBelow replenishes n keys when fewer than threshold remain published.
func (s *Service) ReplenishIfBelow(ctx context.Context, userID domain.UserID, threshold, n int) (int, error) {
	remaining, err := s.dir.Remaining(ctx, userID)
	if err != nil {
		return 0, err
	}
	if remaining >= threshold {
		s.log.Debugf("%s has %d one-time prekeys published, no replenish needed", userID, remaining)
		return 0, nil
	}
	return s.Replenish(ctx, userID, n)
}

// RotateSignedPreKey creates and publishes a new signed prekey, then prunes
// all but the most recent retained ones. It returns the new key id.
func (s *Service) RotateSignedPreKey(ctx context.Context, userID domain.UserID) (domain.SignedPreKeyID, error) {
	id, err := s.keys.IdentityKeyPair()
	if err != nil {
		return 0, err
	}
	existing, err := s.keys.SignedPreKeys()
	if err != nil {
		return 0, err
	}
	var next domain.SignedPreKeyID
	if len(existing) > 0 {
		next = existing[len(existing)-1].ID + 1
	}

	spk, err := crypto.GenerateSignedPreKey(id, next)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrKeyGeneration, err)
	}
	spk.CreatedAt = s.now().UTC()
	if err := s.keys.StoreSignedPreKey(spk); err != nil {
		return 0, err
	}
	if err := s.dir.ReplaceSignedPreKey(ctx, userID, spk.PublicPart()); err != nil {
		return 0, err
	}

	// existing is ordered by id; keep the newest s.retain of them.
	if prune := len(existing) - s.retain; prune > 0 {
		for _, old := range existing[:prune] {
			if err := s.keys.RemoveSignedPreKey(old.ID); err != nil {
				return 0, err
			}
			s.log.Debugf("pruned signed prekey %d", old.ID)
		}
	}
	s.log.Infof("rotated signed prekey for %s to %d", userID, next)
	return next, nil
}

// Republish rebuilds the bundle record from the local store and publishes it.
// It recovers from a key generation whose publish step failed.
func (s *Service) Republish(ctx context.Context, userID domain.UserID) error {
	id, err := s.keys.IdentityKeyPair()
	if err != nil {
		return err
	}
	regID, err := s.keys.LocalRegistrationID()
	if err != nil {
		return err
	}
	spk, err := s.current()
	if err != nil {
		return err
	}
	next, err := s.keys.NextPreKeyID()
	if err != nil {
		return err
	}
	var pubs []domain.OneTimePreKeyPublic
	for i := domain.PreKeyID(0); i < next; i++ {
		k, ok, err := s.keys.LoadPreKey(i)
		if err != nil {
			return err
		}
		if ok {
			pubs = append(pubs, k.PublicPart())
		}
	}
	return s.dir.Publish(ctx, userID, domain.PublishedKeys{
		IdentityKey:    id.Public(),
		RegistrationID: regID,
		PreKeys:        pubs,
		SignedPreKey:   spk.PublicPart(),
		CreatedAt:      s.now().UTC(),
	})
}

// Status reports local and published prekey counts and the current signed prekey.
func (s *Service) Status(ctx context.Context, userID domain.UserID) (domain.PreKeyStatus, error) {
	local, err := s.keys.CountPreKeys()
	if err != nil {
		return domain.PreKeyStatus{}, err
	}
	spk, err := s.current()
	if err != nil {
		return domain.PreKeyStatus{}, err
	}
	published, err := s.dir.Remaining(ctx, userID)
	if err != nil {
		return domain.PreKeyStatus{}, err
	}
	return domain.PreKeyStatus{
		LocalPreKeys:        local,
		PublishedPreKeys:    published,
		SignedPreKeyID:      spk.ID,
		SignedPreKeyCreated: spk.CreatedAt,
	}, nil
}

// current returns the signed prekey with the highest id.
func (s *Service) current() (domain.SignedPreKey, error) {
	all, err := s.keys.SignedPreKeys()
	if err != nil {
		return domain.SignedPreKey{}, err
	}
	if len(all) == 0 {
		return domain.SignedPreKey{}, errNoSignedPreKey
	}
	return all[len(all)-1], nil
}

var errNoSignedPreKey = errString("no signed prekey available")

type errString string

func (e errString) Error() string { return string(e) }

// Compile-time assertion that Service implements domain.PreKeyService.
var _ domain.PreKeyService = (*Service)(nil)
