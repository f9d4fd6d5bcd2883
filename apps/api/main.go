package main

import (
	"context"
	"expvar"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	echoapi "github.com/trezcool/gatheria/apps/api/echo"
	"github.com/trezcool/gatheria/core"
	"github.com/trezcool/gatheria/core/account"
	"github.com/trezcool/gatheria/core/enrollment"
	"github.com/trezcool/gatheria/core/gate"
	"github.com/trezcool/gatheria/core/lecture"
	"github.com/trezcool/gatheria/core/session"
	appfs "github.com/trezcool/gatheria/fs"
	emailsvc "github.com/trezcool/gatheria/services/email"
	logsvc "github.com/trezcool/gatheria/services/logger"
	"github.com/trezcool/gatheria/storage/database"
	inmemdb "github.com/trezcool/gatheria/storage/database/inmem"
	sqlxrepos "github.com/trezcool/gatheria/storage/database/sqlx"
)

type repositories struct {
	tx          core.Transactor
	accounts    account.Repository
	sessions    session.Repository
	lectures    lecture.Repository
	memberships enrollment.Repository
}

func main() {
	inmem := flag.Bool("inmem", false, "keep data in memory instead of postgres")
	flag.Parse()

	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger("API", conf)
	logger.Enable(!conf.Debug)
	defer logger.Sync()

	dbLogger := logsvc.NewRollbarLogger("DB", conf)
	dbLogger.Enable(!conf.Debug)
	defer dbLogger.Sync()

	// set up storage
	var repos repositories
	if *inmem {
		db := inmemdb.Open()
		repos = repositories{
			tx:          inmemdb.NewTransactor(),
			accounts:    inmemdb.NewAccountRepository(db),
			sessions:    inmemdb.NewSessionRepository(db),
			lectures:    inmemdb.NewLectureRepository(db),
			memberships: inmemdb.NewMembershipRepository(db),
		}
	} else {
		db, err := setUpDB(conf)
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
		}
		defer func() {
			if err = db.Close(); err != nil {
				dbLogger.Error("Failed to close", err)
			}
		}()
		repos = repositories{
			tx:          database.NewTransactor(db),
			accounts:    sqlxrepos.NewAccountRepository(db),
			sessions:    sqlxrepos.NewSessionRepository(db),
			lectures:    sqlxrepos.NewLectureRepository(db),
			memberships: sqlxrepos.NewMembershipRepository(db),
		}
	}

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	accountSvc := account.NewService(repos.tx, repos.accounts, mailSvc, conf)
	sessionSvc := session.NewService(repos.sessions, accountSvc, conf, logger)
	lectureSvc := lecture.NewService(repos.lectures, conf)
	enrollmentSvc := enrollment.NewService(repos.tx, repos.memberships, lectureSvc)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	account.InitValidators(validate, translator, conf)

	core.ParseEmailTemplates(appfs.FS, conf, logger)

	account.LoadCommonPasswords(appfs.FS, logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start Session Sweeper

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	go sessionSvc.RunSweeper(sweepCtx, conf.Auth.SweepInterval)

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:          conf,
			Logger:        logger,
			AccountSvc:    accountSvc,
			SessionSvc:    sessionSvc,
			LectureSvc:    lectureSvc,
			EnrollmentSvc: enrollmentSvc,
			Gate:          gate.New(enrollmentSvc),
			Validate:      validate,
			Translator:    translator,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err := <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))
		stopSweeper()

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err := server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(context.Background(), db); err != nil {
		return nil, err
	}
	return db, nil
}
