package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/madcrx/FADirect/internal/domain"
)

// ErrNoUser is returned by commands that act for the local account when none
// is configured or remembered.
var ErrNoUser = errors.New("no user configured (use --user or run init)")

// App runs the user-facing flows on top of a Wire.
type App struct {
	*Wire
	now func() time.Time
}

// New returns an App over w.
func New(w *Wire) *App {
	return &App{Wire: w, now: time.Now}
}

// User returns the local account id: the configured user, else the one
// recorded by init.
func (a *App) User() (domain.UserID, error) {
	if a.Config.User != "" {
		return domain.UserID(a.Config.User), nil
	}
	profile, ok, err := a.Accounts.LoadAccountProfile()
	if err != nil {
		return "", err
	}
	if !ok || profile.UserID == "" {
		return "", ErrNoUser
	}
	return profile.UserID, nil
}

// Init generates and publishes the key set for the configured user and
// records the account profile.
func (a *App) Init(ctx context.Context, force bool) (domain.AccountProfile, error) {
	if a.Config.User == "" {
		return domain.AccountProfile{}, ErrNoUser
	}
	user := domain.UserID(a.Config.User)

	fp, err := a.KeyGenerator(force).GenerateUserKeys(ctx, user)
	if err != nil {
		return domain.AccountProfile{}, err
	}
	reg, err := a.Keys.LocalRegistrationID()
	if err != nil {
		return domain.AccountProfile{}, err
	}

	profile := domain.AccountProfile{
		UserID:         user,
		RegistrationID: reg,
		Directory:      a.directoryName(),
		Fingerprint:    fp,
		CreatedAt:      a.now().UTC(),
	}
	if err := a.Accounts.SaveAccountProfile(profile); err != nil {
		return domain.AccountProfile{}, fmt.Errorf("save account profile: %w", err)
	}
	a.Log.Infof("initialised %s (registration %d)", user, reg)
	return profile, nil
}

// Send encrypts text for peer and stores it in the arrangement.
func (a *App) Send(ctx context.Context, arrangementID string, peer domain.UserID, text string) (domain.Message, error) {
	user, err := a.User()
	if err != nil {
		return domain.Message{}, err
	}
	return a.Messages.Send(ctx, domain.OutgoingMessage{
		ArrangementID: arrangementID,
		SenderID:      user,
		RecipientID:   peer,
		Type:          domain.MessageText,
		Content:       text,
	})
}

// Receive lists the arrangement for the local user and marks unread messages
// addressed to it as read. The prekey supply is topped up afterwards since
// opening PREKEY messages consumes one-time prekeys.
func (a *App) Receive(ctx context.Context, arrangementID string) ([]domain.DecryptedMessage, error) {
	user, err := a.User()
	if err != nil {
		return nil, err
	}
	msgs, err := a.Messages.List(ctx, arrangementID, user)
	if err != nil {
		return nil, err
	}
	for i := range msgs {
		if err := a.acknowledge(ctx, user, &msgs[i]); err != nil {
			return nil, err
		}
	}
	a.replenish(ctx, user)
	return msgs, nil
}

// Watch calls fn for every new message of the arrangement until ctx is done.
func (a *App) Watch(ctx context.Context, arrangementID string, fn func(domain.DecryptedMessage)) error {
	user, err := a.User()
	if err != nil {
		return err
	}
	ch, err := a.Messages.Watch(ctx, arrangementID, user)
	if err != nil {
		return err
	}
	for m := range ch {
		if err := a.acknowledge(ctx, user, &m); err != nil {
			a.Log.Warnf("failed to acknowledge %s: %s", m.ID, err)
		}
		fn(m)
		a.replenish(ctx, user)
	}
	return ctx.Err()
}

// PreKeyStatus reports the prekey supply of the local account.
func (a *App) PreKeyStatus(ctx context.Context) (domain.PreKeyStatus, error) {
	user, err := a.User()
	if err != nil {
		return domain.PreKeyStatus{}, err
	}
	return a.PreKeys.Status(ctx, user)
}

// Replenish publishes n more one-time prekeys, or a configured batch when n
// is zero.
func (a *App) Replenish(ctx context.Context, n int) (int, error) {
	user, err := a.User()
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		n = a.Config.PreKeys.Batch
	}
	return a.PreKeys.Replenish(ctx, user, n)
}

// Rotate replaces the signed prekey.
func (a *App) Rotate(ctx context.Context) (domain.SignedPreKeyID, error) {
	user, err := a.User()
	if err != nil {
		return 0, err
	}
	return a.PreKeys.RotateSignedPreKey(ctx, user)
}

func (a *App) acknowledge(ctx context.Context, user domain.UserID, m *domain.DecryptedMessage) error {
	if m.RecipientID != user || !m.Decrypted || m.ReadAt != nil {
		return nil
	}
	if err := a.Messages.MarkRead(ctx, m.ID); err != nil {
		return fmt.Errorf("mark %s read: %w", m.ID, err)
	}
	now := a.now().UTC()
	m.ReadAt = &now
	return nil
}

func (a *App) replenish(ctx context.Context, user domain.UserID) {
	n, err := a.PreKeys.ReplenishIfBelow(ctx, user, a.Config.PreKeys.Threshold, a.Config.PreKeys.Batch)
	if err != nil {
		a.Log.Warnf("prekey replenishment failed: %s", err)
		return
	}
	if n > 0 {
		a.Log.Infof("published %d one-time prekeys", n)
	}
}

func (a *App) directoryName() string {
	if a.Config.Store == StoreRelay {
		return a.Config.Relay
	}
	return a.Config.Store
}
