// Package testutil holds the helpers shared by the test suites.
package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/gatheria/core"
	"github.com/trezcool/gatheria/core/account"
	appfs "github.com/trezcool/gatheria/fs"
	"github.com/trezcool/gatheria/storage/database"
)

// TestPassword passes the password policy.
const TestPassword = "Gath3ria!Pwd"

// CreateAccount stores an account directly, bypassing registration and its state machine.
func CreateAccount(
	t *testing.T,
	repo account.Repository,
	name, email, pwd string,
	role account.Role,
	state account.State,
	createdAt ...time.Time,
) account.Account {
	t.Helper()

	tstamp := core.Now()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	acc := account.Account{
		Name:           name,
		Email:          email,
		Role:           role,
		State:          state,
		StateChangedAt: tstamp,
		CreatedAt:      tstamp,
		UpdatedAt:      tstamp,
	}
	if pwd != "" {
		if err := acc.SetPassword(pwd); err != nil {
			t.Fatalf("createAccount() failed: %v", err)
		}
	}
	acc, err := repo.CreateAccount(context.Background(), acc)
	if err != nil {
		t.Fatalf("createAccount() failed: %v", err)
	}
	return acc
}

// NewValidator returns a validator and translator with every custom validator registered.
func NewValidator(conf *core.Config) (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	account.InitValidators(validate, translator, conf)
	return validate, translator
}

// LoadAssets parses the email templates and the common passwords list.
func LoadAssets(conf *core.Config, logger core.Logger) {
	core.ParseEmailTemplates(appfs.FS, conf, logger)
	account.LoadCommonPasswords(appfs.FS, logger)
}

// OpenDB opens and migrates the postgres database of TEST_DATABASE_URL, with empty tables.
// The test is skipped when TEST_DATABASE_URL is not set.
func OpenDB(t *testing.T) *sqlx.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := database.OpenURL(dsn)
	if err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	if err = database.Migrate(ctx, db); err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	ResetDB(t, db)
	return db
}

func ResetDB(t *testing.T, db *sqlx.DB) {
	t.Helper()
	if _, err := db.Exec(`TRUNCATE membership, lecture, session, account`); err != nil {
		t.Fatalf("ResetDB() failed: %v", err)
	}
}

// Logger is a core.Logger that discards everything.
type Logger struct{}

var _ core.Logger = Logger{}

func (Logger) Debug(string, ...interface{}) {}
func (Logger) Info(string, ...interface{})  {}
func (Logger) Warn(string, ...interface{})  {}
func (Logger) Error(string, ...interface{}) {}
func (Logger) Fatal(string, ...interface{}) {}
