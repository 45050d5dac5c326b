package interfaces

import domaintypes "github.com/madcrx/FADirect/internal/domain/types"

// AccountStore remembers which account this device was initialised for.
type AccountStore interface {
	SaveAccountProfile(profile domaintypes.AccountProfile) error
	LoadAccountProfile() (domaintypes.AccountProfile, bool, error)
}
