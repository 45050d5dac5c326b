package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alecthomas/types/optional"
	"go.uber.org/zap"

	"github.com/madcrx/FADirect/internal/domain"
)

// Table holds one bundle record per account.
const Table = "encryption_keys"

// Directory implements domain.BundleDirectory over a document store.
type Directory struct {
	docs domain.DocumentStore
	log  *zap.SugaredLogger
}

// New returns a Directory backed by docs.
func New(docs domain.DocumentStore, log *zap.SugaredLogger) *Directory {
	return &Directory{docs: docs, log: log}
}

// Publish replaces the bundle record of userID.
func (d *Directory) Publish(ctx context.Context, userID domain.UserID, keys domain.PublishedKeys) error {
	doc, err := document(newRecord(keys))
	if err != nil {
		return err
	}
	if err := d.docs.Set(ctx, Table, string(userID), doc); err != nil {
		return fmt.Errorf("publish bundle for %s: %w", userID, err)
	}
	d.log.Infof("published bundle for %s with %d one-time prekeys", userID, len(keys.PreKeys))
	return nil
}

// Fetch returns the bundle of userID, claiming one one-time prekey with the
// lowest id. The claimed key is removed from the record so no other fetch
// can receive it. An exhausted pool yields a bundle without a one-time key.
func (d *Directory) Fetch(ctx context.Context, userID domain.UserID) (domain.PreKeyBundle, error) {
	rec, err := d.load(ctx, userID)
	if err != nil {
		return domain.PreKeyBundle{}, err
	}
	ik, err := rec.identity()
	if err != nil {
		return domain.PreKeyBundle{}, fmt.Errorf("bundle for %s: %w", userID, err)
	}
	spk, err := rec.SignedPreKey.decode()
	if err != nil {
		return domain.PreKeyBundle{}, fmt.Errorf("bundle for %s: %w", userID, err)
	}
	bundle := domain.PreKeyBundle{
		UserID:         userID,
		RegistrationID: domain.RegistrationID(rec.RegistrationID),
		DeviceID:       domain.DefaultDeviceID,
		IdentityKey:    ik,
		SignedPreKey:   spk,
	}

	raw, ok, err := d.docs.TakeOne(ctx, Table, string(userID), fieldPreKeys, domain.PickLowest)
	if err != nil {
		return domain.PreKeyBundle{}, d.wrap(userID, "claim prekey", err)
	}
	if !ok {
		d.log.Warnf("%s has no published one-time prekeys left", userID)
		return bundle, nil
	}
	var entry preKeyEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return domain.PreKeyBundle{}, fmt.Errorf("claimed prekey for %s: %w", userID, err)
	}
	opk, err := entry.decode()
	if err != nil {
		return domain.PreKeyBundle{}, fmt.Errorf("bundle for %s: %w", userID, err)
	}
	bundle.OneTimePreKey = optional.Some(opk)
	d.log.Debugf("claimed one-time prekey %d of %s", opk.ID, userID)
	return bundle, nil
}

// Remaining counts the one-time prekeys still published for userID.
func (d *Directory) Remaining(ctx context.Context, userID domain.UserID) (int, error) {
	rec, err := d.load(ctx, userID)
	if err != nil {
		return 0, err
	}
	return len(rec.PreKeys), nil
}

// AppendPreKeys publishes additional one-time prekeys.
func (d *Directory) AppendPreKeys(ctx context.Context, userID domain.UserID, keys []domain.OneTimePreKeyPublic) error {
	if len(keys) == 0 {
		return nil
	}
	items := make([]json.RawMessage, 0, len(keys))
	for _, e := range preKeyEntries(keys) {
		b, err := json.Marshal(e)
		if err != nil {
			return err
		}
		items = append(items, b)
	}
	if err := d.docs.Append(ctx, Table, string(userID), fieldPreKeys, items); err != nil {
		return d.wrap(userID, "append prekeys", err)
	}
	return nil
}

// ReplaceSignedPreKey publishes a new current signed prekey.
func (d *Directory) ReplaceSignedPreKey(ctx context.Context, userID domain.UserID, key domain.SignedPreKeyPublic) error {
	patch, err := document(map[string]any{fieldSignedPreKey: signedEntry(key)})
	if err != nil {
		return err
	}
	if err := d.docs.Update(ctx, Table, string(userID), patch); err != nil {
		return d.wrap(userID, "replace signed prekey", err)
	}
	return nil
}

func (d *Directory) load(ctx context.Context, userID domain.UserID) (bundleRecord, error) {
	st, err := d.docs.Get(ctx, Table, string(userID))
	if err != nil {
		return bundleRecord{}, d.wrap(userID, "load bundle", err)
	}
	return decodeRecord(st.Data)
}

// wrap maps a missing record to ErrBundleNotFound.
func (d *Directory) wrap(userID domain.UserID, op string, err error) error {
	if errors.Is(err, domain.ErrDocumentNotFound) {
		return fmt.Errorf("%s: %w", userID, domain.ErrBundleNotFound)
	}
	return fmt.Errorf("%s for %s: %w", op, userID, err)
}

// Compile-time assertion that Directory implements domain.BundleDirectory.
var _ domain.BundleDirectory = (*Directory)(nil)
