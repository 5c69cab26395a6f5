package transport

// RecoveryPolicy decides what happens between the two send attempts of a
// datagram. With ReinitOnTransient set, an error that IsTransient accepts
// closes and rebinds the socket with its original parameters before the
// retry. A nil IsTransient uses IsTransientSendError.
type RecoveryPolicy struct {
	ReinitOnTransient bool
	IsTransient       func(err error) bool
}

// DefaultRecoveryPolicy reinitializes the socket on errors that leave it
// unusable, such as a mobile OS revoking sockets while the app was idle.
func DefaultRecoveryPolicy() RecoveryPolicy {
	return RecoveryPolicy{
		ReinitOnTransient: true,
		IsTransient:       IsTransientSendError,
	}
}

// shouldReinit reports whether err calls for a socket reinitialization.
func (p RecoveryPolicy) shouldReinit(err error) bool {
	if !p.ReinitOnTransient || err == nil {
		return false
	}
	if p.IsTransient == nil {
		return IsTransientSendError(err)
	}
	return p.IsTransient(err)
}
