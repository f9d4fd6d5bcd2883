package tests

import (
	"context"
	"testing"

	"github.com/trezcool/gatheria/apps/api/echo"
	"github.com/trezcool/gatheria/core"
	"github.com/trezcool/gatheria/core/account"
	"github.com/trezcool/gatheria/core/enrollment"
	"github.com/trezcool/gatheria/core/gate"
	"github.com/trezcool/gatheria/core/lecture"
	"github.com/trezcool/gatheria/core/session"
	"github.com/trezcool/gatheria/services/email"
	"github.com/trezcool/gatheria/storage/database/inmem"
	"github.com/trezcool/gatheria/tests"
)

var ctxBg = context.Background()

type testApp struct {
	*echoapi.Server
	conf        *core.Config
	accRepo     account.Repository
	mail        *emailsvc.ConsoleServiceMock
	accountSvc  *account.Service
	sessionSvc  *session.Service
	lectureSvc  *lecture.Service
	enrollments *enrollment.Service
}

func setup(t *testing.T, opts ...func(conf *core.Config)) *testApp {
	t.Helper()
	conf := core.NewTestConfig()
	for _, opt := range opts {
		opt(conf)
	}
	testutil.LoadAssets(conf, testutil.Logger{})
	validate, translator := testutil.NewValidator(conf)

	// set up DB & repos
	db := inmemdb.Open()
	tx := inmemdb.NewTransactor()
	accRepo := inmemdb.NewAccountRepository(db)

	// set up services
	mailSvc := emailsvc.NewConsoleServiceMock(conf, testutil.Logger{})
	accountSvc := account.NewService(tx, accRepo, mailSvc, conf)
	sessionSvc := session.NewService(inmemdb.NewSessionRepository(db), accountSvc, conf, testutil.Logger{})
	lectureSvc := lecture.NewService(inmemdb.NewLectureRepository(db), conf)
	enrollmentSvc := enrollment.NewService(tx, inmemdb.NewMembershipRepository(db), lectureSvc)

	// set up server
	srv := echoapi.NewServer(echoapi.ServerDeps{
		Conf:          conf,
		Logger:        testutil.Logger{},
		AccountSvc:    accountSvc,
		SessionSvc:    sessionSvc,
		LectureSvc:    lectureSvc,
		EnrollmentSvc: enrollmentSvc,
		Gate:          gate.New(enrollmentSvc),
		Validate:      validate,
		Translator:    translator,
	})
	t.Cleanup(func() { _ = srv.Close() })

	return &testApp{
		Server:      srv,
		conf:        conf,
		accRepo:     accRepo,
		mail:        mailSvc,
		accountSvc:  accountSvc,
		sessionSvc:  sessionSvc,
		lectureSvc:  lectureSvc,
		enrollments: enrollmentSvc,
	}
}

// getToken signs acc in through the store directly.
func getToken(t *testing.T, app *testApp, acc account.Account, remember ...bool) string {
	t.Helper()
	_, token, err := app.sessionSvc.Issue(ctxBg, acc.ID, len(remember) > 0 && remember[0])
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}
