package tx

import "errors"

// Structural errors: the transaction is malformed and can never become valid.
var (
	ErrSchema              = errors.New("transaction schema violation")
	ErrUnknownType         = errors.New("unknown transaction type")
	ErrMissingSender       = errors.New("missing sender")
	ErrInvalidID           = errors.New("invalid transaction id")
	ErrInvalidSenderKey    = errors.New("invalid sender public key")
	ErrInvalidSenderID     = errors.New("invalid sender address")
	ErrInvalidRequester    = errors.New("invalid requester public key")
	ErrMissingSecondSig    = errors.New("missing sender second signature")
	ErrUnexpectedSecondSig = errors.New("sender does not have a second signature")
	ErrInvalidSignature    = errors.New("failed to verify signature")
	ErrInvalidSecondSig    = errors.New("failed to verify second signature")
	ErrDuplicateSignature  = errors.New("encountered duplicate signature in transaction")
	ErrInvalidMultisig     = errors.New("failed to verify multisignature")
	ErrInvalidFee          = errors.New("invalid transaction fee")
	ErrInvalidAmount       = errors.New("invalid transaction amount")
	ErrInvalidTimestamp    = errors.New("invalid transaction timestamp")
	ErrInvalidRecipient    = errors.New("invalid recipient")
	ErrInvalidAsset        = errors.New("invalid transaction asset")
	ErrInvalidUsername     = errors.New("invalid delegate username")
	ErrEmptyVotes          = errors.New("invalid votes: must not be empty")
	ErrTooManyVotes        = errors.New("voting limit exceeded")
	ErrInvalidVote         = errors.New("invalid vote format")
	ErrDuplicateVote       = errors.New("multiple votes for same delegate are not allowed")
	ErrInvalidMultisigMin  = errors.New("invalid multisignature min")
	ErrInvalidLifetime     = errors.New("invalid multisignature lifetime")
	ErrInvalidKeysgroup    = errors.New("invalid multisignature keysgroup")
	ErrInvalidDapp         = errors.New("invalid application")
	ErrFrozen              = errors.New("transaction type is frozen")
)

// Business rule conflicts: the transaction is well formed but clashes with
// the current ledger state.
var (
	ErrAlreadyConfirmed     = errors.New("transaction is already confirmed")
	ErrNotReady             = errors.New("transaction is not ready")
	ErrInsufficientFunds    = errors.New("account does not have enough balance")
	ErrAlreadyDelegate      = errors.New("account is already a delegate")
	ErrUsernameTaken        = errors.New("username already exists")
	ErrAlreadyVoted         = errors.New("failed to add vote, account has already voted for this delegate")
	ErrNotVoted             = errors.New("failed to remove vote, account has not voted for this delegate")
	ErrDelegateNotFound     = errors.New("delegate not found")
	ErrVoteLimit            = errors.New("maximum number of votes exceeded")
	ErrSecondSigEnabled     = errors.New("second signature already enabled")
	ErrMultisigEnabled      = errors.New("account already has multisignatures enabled")
	ErrMultisigPending      = errors.New("signature on this account is pending confirmation")
	ErrDappNameTaken        = errors.New("application name already exists")
	ErrDappLinkTaken        = errors.New("application link already exists")
	ErrDappNotFound         = errors.New("application not found")
	ErrOutTransferInFlight  = errors.New("out transfer is already processing")
	ErrOutTransferConfirmed = errors.New("out transfer is already confirmed")
)
