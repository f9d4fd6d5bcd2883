package main

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/gatheria/core"
	"github.com/trezcool/gatheria/core/account"
	"github.com/trezcool/gatheria/core/session"
	appfs "github.com/trezcool/gatheria/fs"
	emailsvc "github.com/trezcool/gatheria/services/email"
	logsvc "github.com/trezcool/gatheria/services/logger"
	"github.com/trezcool/gatheria/storage/database"
	sqlxrepos "github.com/trezcool/gatheria/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger("ADMIN", conf)
	logger.Enable(!conf.Debug)

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	account.InitValidators(validate, translator, conf)
	core.ParseEmailTemplates(appfs.FS, conf, logger)
	account.LoadCommonPasswords(appfs.FS, logger)

	accountSvc := account.NewService(database.NewTransactor(db), sqlxrepos.NewAccountRepository(db), mailSvc, conf)

	// start CLI
	cli := commandLine{
		db:         db,
		accountSvc: accountSvc,
		sessionSvc: session.NewService(sqlxrepos.NewSessionRepository(db), accountSvc, conf, logger),
		validate:   validate,
		translator: translator,
	}
	err = cli.run(os.Args)

	_ = db.Close()
	logger.Sync()
	if err != nil {
		if err != errHelp {
			fmt.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
