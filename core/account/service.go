package account

import (
	"context"
	"net/mail"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/gatheria/core"
)

var (
	// errors
	ErrNotFound           = core.NewError(core.KindNotFound, "account not found")
	ErrEmailExists        = core.NewError(core.KindConflict, "an account with this email already exists")
	ErrInvalidCredentials = core.NewError(core.KindInvalidCredentials, "invalid email or password")
	ErrInvalidTransition  = core.NewError(core.KindInvalidTransition, "invalid activation state transition")
	ErrAccountNotActive   = core.NewError(core.KindAccountNotActive, "account is not active")
	ErrInvalidToken       = core.NewError(core.KindInvalidToken, "invalid token")
	ErrExpiredToken       = core.NewError(core.KindExpiredToken, "token expired")

	errEmailMismatch   = "email does not match the signed-in account"
	errNotVerifiable   = "this account is not awaiting email verification"
	errEmailTaken      = "an account with this email already exists"
	verifyEmailSubject = "Verify your email address"
	reviewedSubject    = "Your instructor account"
)

var (
	dummyHash     []byte
	dummyHashOnce sync.Once
)

func dummyPasswordHash() []byte {
	dummyHashOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("gatheria.account.dummy"), bcrypt.DefaultCost)
	})
	return dummyHash
}

type (
	Repository interface {
		// CreateAccount fails with ErrEmailExists when the email is taken.
		CreateAccount(ctx context.Context, acc Account, exec ...core.DBExecutor) (Account, error)
		GetAccountByID(ctx context.Context, id string, exec ...core.DBExecutor) (Account, error)
		GetAccountByEmail(ctx context.Context, email string, exec ...core.DBExecutor) (Account, error)
		// UpdateAccountState moves the account to `to` only if it is still in `from`.
		// It reports whether the row was updated.
		UpdateAccountState(ctx context.Context, id string, from, to State, reason string, at time.Time, exec ...core.DBExecutor) (bool, error)
		SetLastLogin(ctx context.Context, id string, at time.Time, exec ...core.DBExecutor) error
		SetPasswordHash(ctx context.Context, id string, hash []byte, at time.Time, exec ...core.DBExecutor) error
		SetDeactivated(ctx context.Context, id string, at *time.Time, exec ...core.DBExecutor) error
	}

	Service struct {
		tx      core.Transactor
		repo    Repository
		mailSvc core.EmailService
		conf    *core.Config
	}
)

func NewService(tx core.Transactor, repo Repository, mailSvc core.EmailService, conf *core.Config) *Service {
	return &Service{
		tx:      tx,
		repo:    repo,
		mailSvc: mailSvc,
		conf:    conf,
	}
}

// Register creates the account as unverified and moves it to its role's pending state in one transaction.
// Students are sent a verification email right away.
func (svc *Service) Register(ctx context.Context, na NewAccount) (Account, error) {
	now := core.Now()
	acc := Account{
		Email:          na.Email,
		Name:           na.Name,
		Role:           na.Role,
		State:          StateUnverified,
		StateChangedAt: now,
		Affiliation:    na.Affiliation,
		Phone:          na.Phone,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := acc.SetPassword(na.Password); err != nil {
		return Account{}, errors.Wrap(err, "hashing password")
	}

	err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if acc, err = svc.repo.CreateAccount(ctx, acc, exec); err != nil {
			if errors.Is(err, ErrEmailExists) {
				return core.NewValidationError(err, core.FieldError{Field: "email", Error: errEmailTaken})
			}
			return errors.Wrap(err, "creating account")
		}
		acc, err = svc.transition(ctx, acc, PendingState(acc.Role), TriggerRegistration, "", exec)
		return err
	})
	if err != nil {
		return Account{}, err
	}

	if acc.State == StatePendingEmailVerification {
		if err := svc.sendVerificationMail(acc); err != nil {
			return Account{}, errors.Wrap(err, "sending verification mail")
		}
	}
	return acc, nil
}

// Authenticate checks the credentials of an account of the given role.
// Every failure (unknown email, wrong password, wrong role) is reported as ErrInvalidCredentials.
// The activation state is not checked: inactive accounts can sign in and see where they stand.
func (svc *Service) Authenticate(ctx context.Context, role Role, email, pwd string) (Account, error) {
	acc, err := svc.repo.GetAccountByEmail(ctx, core.CleanString(email, true /* lower */))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return Account{}, errors.Wrap(err, "finding account by email")
		}
		// keep the response time of unknown emails close to the one of known ones
		_ = bcrypt.CompareHashAndPassword(dummyPasswordHash(), []byte(pwd))
		return Account{}, ErrInvalidCredentials
	}
	if err = acc.CheckPassword(pwd); err != nil {
		return Account{}, ErrInvalidCredentials
	}
	if acc.Role != role {
		return Account{}, ErrInvalidCredentials
	}

	now := core.Now()
	if err = svc.repo.SetLastLogin(ctx, acc.ID, now); err != nil {
		return Account{}, errors.Wrap(err, "setting lastLogin")
	}
	acc.LastLogin = now
	return acc, nil
}

// RequestVerification (re)sends the verification email of acc.
// email, when given, must be the account's own. Already active accounts are left untouched.
func (svc *Service) RequestVerification(ctx context.Context, acc Account, email string) error {
	if email = core.CleanString(email, true /* lower */); email != "" && email != acc.Email {
		return core.NewValidationError(nil, core.FieldError{Field: "email", Error: errEmailMismatch})
	}
	if acc.State == StateActive {
		return nil
	}
	if acc.State != StatePendingEmailVerification {
		return core.NewValidationError(errors.New(errNotVerifiable))
	}
	return errors.Wrap(svc.sendVerificationMail(acc), "sending verification mail")
}

// VerifyEmail redeems a verification token and activates its account.
// Redeeming a token of an account that is already active is a no-op.
func (svc *Service) VerifyEmail(ctx context.Context, token string) (Account, error) {
	claims, err := svc.parseVerificationToken(token)
	if err != nil {
		return Account{}, err
	}

	acc, err := svc.repo.GetAccountByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Account{}, ErrInvalidToken
		}
		return Account{}, errors.Wrap(err, "finding account by ID")
	}
	if acc.Email != claims.Email {
		return Account{}, ErrInvalidToken
	}
	return svc.transition(ctx, acc, StateActive, TriggerEmailVerification, "")
}

// Approve activates a pending instructor.
func (svc *Service) Approve(ctx context.Context, email string) (Account, error) {
	return svc.review(ctx, email, StateActive, "")
}

// Reject turns down a pending instructor. Rejection is final.
func (svc *Service) Reject(ctx context.Context, email, reason string) (Account, error) {
	return svc.review(ctx, email, StateRejected, core.CleanString(reason))
}

func (svc *Service) review(ctx context.Context, email string, to State, reason string) (Account, error) {
	acc, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return Account{}, err
	}
	prev := acc.State
	if acc, err = svc.transition(ctx, acc, to, TriggerAdmin, reason); err != nil {
		return Account{}, err
	}
	if prev != acc.State {
		svc.mailSvc.SendMessages(&core.EmailMessage{
			To:           []mail.Address{{Name: acc.Name, Address: acc.Email}},
			Subject:      reviewedSubject,
			TemplateName: "account_reviewed",
			TemplateData: map[string]interface{}{
				"Name":     acc.Name,
				"Approved": acc.State == StateActive,
				"Reason":   reason,
			},
		})
	}
	return acc, nil
}

// Deactivate soft-deactivates an account: it is kept but can no longer use protected resources.
func (svc *Service) Deactivate(ctx context.Context, email string) (Account, error) {
	return svc.setDeactivated(ctx, email, true)
}

func (svc *Service) Reactivate(ctx context.Context, email string) (Account, error) {
	return svc.setDeactivated(ctx, email, false)
}

func (svc *Service) setDeactivated(ctx context.Context, email string, deactivated bool) (Account, error) {
	acc, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return Account{}, err
	}
	var at *time.Time
	if deactivated {
		now := core.Now()
		at = &now
	}
	if err = svc.repo.SetDeactivated(ctx, acc.ID, at); err != nil {
		return Account{}, errors.Wrap(err, "setting deactivatedAt")
	}
	acc.DeactivatedAt = at
	return acc, nil
}

func (svc *Service) SetPassword(ctx context.Context, email, pwd string) error {
	acc, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if err = acc.SetPassword(pwd); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	return errors.Wrap(svc.repo.SetPasswordHash(ctx, acc.ID, acc.PasswordHash, core.Now()), "setting password")
}

func (svc *Service) GetByID(ctx context.Context, id string) (Account, error) {
	return svc.repo.GetAccountByID(ctx, id)
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (Account, error) {
	return svc.repo.GetAccountByEmail(ctx, core.CleanString(email, true /* lower */))
}

// transition persists acc's move to `to` with a compare-and-set on its current state.
// Losing a race is fine as long as the winner reached `to` too.
func (svc *Service) transition(ctx context.Context, acc Account, to State, trig Trigger, reason string, exec ...core.DBExecutor) (Account, error) {
	if acc.State == to {
		return acc, nil
	}
	if err := CheckTransition(acc.Role, acc.State, to, trig); err != nil {
		return Account{}, err
	}

	now := core.Now()
	ok, err := svc.repo.UpdateAccountState(ctx, acc.ID, acc.State, to, reason, now, exec...)
	if err != nil {
		return Account{}, errors.Wrap(err, "updating account state")
	}
	if !ok {
		cur, err := svc.repo.GetAccountByID(ctx, acc.ID, exec...)
		if err != nil {
			return Account{}, errors.Wrap(err, "re-reading account")
		}
		if cur.State == to {
			return cur, nil
		}
		return Account{}, ErrInvalidTransition.Errorf("account moved to %s concurrently", cur.State)
	}

	acc.State = to
	acc.StateReason = reason
	acc.StateChangedAt = now
	acc.UpdatedAt = now
	return acc, nil
}

func (svc *Service) sendVerificationMail(acc Account) error {
	token, expiresAt, err := svc.makeVerificationToken(acc)
	if err != nil {
		return errors.Wrap(err, "making verification token")
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: acc.Name, Address: acc.Email}},
		Subject:      verifyEmailSubject,
		TemplateName: "verify_email",
		TemplateData: map[string]interface{}{
			"Name":      acc.Name,
			"Token":     token,
			"ExpiresAt": expiresAt,
		},
	})
	return nil
}
