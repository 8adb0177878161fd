package models

import "errors"

// Failure taxonomy shared by the engine components. Callers classify with
// errors.Is; everything except ErrApplyFailed followed by a failed restore
// is recoverable and retried on the next scheduled tick.
var (
	ErrNetworkUnavailable = errors.New("network unavailable")
	ErrRemoteNotFound     = errors.New("remote release not found")
	ErrRemoteMalformed    = errors.New("remote response malformed")
	ErrChecksumMismatch   = errors.New("checksum mismatch")
	ErrDecryptionFailed   = errors.New("decryption failed")
	ErrStorageCorrupt     = errors.New("installed state corrupt")
	ErrBackupFailed       = errors.New("backup failed")
	ErrApplyFailed        = errors.New("apply failed")
	ErrRestoreUnavailable = errors.New("no backup available to restore")
)
