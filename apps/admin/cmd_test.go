package main

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/gatheria/core"
	"github.com/trezcool/gatheria/core/account"
	"github.com/trezcool/gatheria/core/session"
	"github.com/trezcool/gatheria/services/email"
	"github.com/trezcool/gatheria/storage/database/inmem"
	"github.com/trezcool/gatheria/tests"
)

var (
	accRepo    account.Repository
	sessionSvc *session.Service
)

func setup(t *testing.T) *commandLine {
	conf := core.NewTestConfig()
	testutil.LoadAssets(conf, testutil.Logger{})
	validate, translator := testutil.NewValidator(conf)

	// set up DB & repos
	db := inmemdb.Open()
	accRepo = inmemdb.NewAccountRepository(db)
	accountSvc := account.NewService(inmemdb.NewTransactor(), accRepo, emailsvc.NewConsoleServiceMock(conf, testutil.Logger{}), conf)
	sessionSvc = session.NewService(inmemdb.NewSessionRepository(db), accountSvc, conf, testutil.Logger{})

	// start CLI
	return &commandLine{
		accountSvc: accountSvc,
		sessionSvc: sessionSvc,
		validate:   validate,
		translator: translator,
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func runCLI(t *testing.T, cli *commandLine, tt cliTest) error {
	t.Helper()
	args := append([]string{"admin"}, tt.args...)
	err := cli.run(args)
	switch {
	case tt.wantErr != nil:
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
		}
	case tt.wantErrStr != "":
		if err == nil || err.Error() != tt.wantErrStr {
			t.Errorf("cli.run() error = %v, wantErrStr %s", err, tt.wantErrStr)
		}
	case err != nil:
		t.Errorf("cli.run() unexpected error = %v", err)
	}
	return err
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	gooseRunFunc = func(_ context.Context, command string, _ *sqlx.DB, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "attendance", "sql"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runCLI(t, cli, tt)
		})
	}
}

func Test_commandLine_review(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()

	approved := testutil.CreateAccount(t, accRepo, "Prof A", "prof.a@test.kr", "", account.RoleInstructor, account.StatePendingReview)
	rejected := testutil.CreateAccount(t, accRepo, "Prof B", "prof.b@test.kr", "", account.RoleInstructor, account.StatePendingReview)
	student := testutil.CreateAccount(t, accRepo, "Student", "student@test.kr", "", account.RoleStudent, account.StatePendingEmailVerification)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "approve: no email", args: []string{"approve"}, wantErr: errHelp},
		{name: "approve: unknown email", args: []string{"approve", "-email", "nobody@test.kr"}, wantErr: account.ErrNotFound},
		{name: "approve: student", args: []string{"approve", "-email", student.Email}, wantErr: account.ErrInvalidTransition},
		{name: "approve", args: []string{"approve", "-email", "PROF.A@test.kr"}},
		{name: "approve: again", args: []string{"approve", "-email", approved.Email}},
		{name: "reject", args: []string{"reject", "-email", rejected.Email, "-reason", "unknown school"}},
		{name: "approve: rejected", args: []string{"approve", "-email", rejected.Email}, wantErr: account.ErrInvalidTransition},
		{name: "reject: active", args: []string{"reject", "-email", approved.Email}, wantErr: account.ErrInvalidTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runCLI(t, cli, tt)
		})
	}

	got, err := accRepo.GetAccountByID(ctx, approved.ID)
	require.NoError(t, err)
	assert.Equal(t, account.StateActive, got.State)

	got, err = accRepo.GetAccountByID(ctx, rejected.ID)
	require.NoError(t, err)
	assert.Equal(t, account.StateRejected, got.State)
	assert.Equal(t, "unknown school", got.StateReason)
}

func Test_commandLine_deactivate(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()
	acc := testutil.CreateAccount(t, accRepo, "Student", "student@test.kr", "", account.RoleStudent, account.StateActive)

	tests := []cliTest{
		{name: "no email", args: []string{"deactivate"}, wantErr: errHelp},
		{name: "unknown email", args: []string{"deactivate", "-email", "nobody@test.kr"}, wantErr: account.ErrNotFound},
		{name: "deactivate", args: []string{"deactivate", "-email", acc.Email}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runCLI(t, cli, tt)
		})
	}

	got, err := accRepo.GetAccountByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDeactivated())

	runCLI(t, cli, cliTest{args: []string{"reactivate", "-email", acc.Email}})
	got, err = accRepo.GetAccountByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive())
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)
	defer func(fn func(int) ([]byte, error)) { readPasswordFunc = fn }(readPasswordFunc)

	acc := testutil.CreateAccount(t, accRepo, "Student", "student@test.kr", testutil.TestPassword, account.RoleStudent, account.StateActive)
	other := testutil.CreateAccount(t, accRepo, "Other", "other@test.kr", testutil.TestPassword, account.RoleStudent, account.StateActive)
	ctx := context.Background()

	var tokens []string
	for i := 0; i < 2; i++ {
		_, token, err := sessionSvc.Issue(ctx, acc.ID, i == 0)
		require.NoError(t, err)
		tokens = append(tokens, token)
	}
	_, otherToken, err := sessionSvc.Issue(ctx, other.ID, false)
	require.NoError(t, err)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "email but no password", args: []string{"resetpassword", "-email", acc.Email}, wantErr: errHelp},
		{name: "account not found", args: []string{"resetpassword", "-email", "nobody@test.kr"}, extra: extra{pwd: "N3w!Secret"}, wantErr: account.ErrNotFound},
		{name: "weak password", args: []string{"resetpassword", "-email", acc.Email}, extra: extra{pwd: "12345678"}, wantErrStr: "password: password cannot be entirely numeric"},
		{name: "reset", args: []string{"resetpassword", "-email", acc.Email}, extra: extra{pwd: "N3w!Secret"}},
	}
	for _, tt := range tests {
		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			if err := runCLI(t, cli, tt); err != nil {
				return
			}
			refreshed, err := accRepo.GetAccountByID(context.Background(), acc.ID)
			require.NoError(t, err)
			if bytes.Equal(refreshed.PasswordHash, acc.PasswordHash) {
				t.Error("failed to update new password")
			}
			assert.NoError(t, refreshed.CheckPassword("N3w!Secret"))

			for _, token := range tokens {
				_, _, err = sessionSvc.Validate(ctx, token)
				assert.True(t, errors.Is(err, session.ErrInvalidToken), "Validate() error = %v", err)
			}
			_, _, err = sessionSvc.Validate(ctx, otherToken)
			assert.NoError(t, err, "other accounts stay signed in")
		})
	}
}
