package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/trezcool/gatheria/core/account"
	"github.com/trezcool/gatheria/core/session"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db         *sqlx.DB
	accountSvc *account.Service
	sessionSvc *session.Service
	validate   *validator.Validate
	translator ut.Translator
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run a goose migration command (up, down, status, ...)")
	fmt.Println("  approve -email EMAIL - activate a pending instructor")
	fmt.Println("  reject -email EMAIL [-reason REASON] - reject a pending instructor")
	fmt.Println("  deactivate -email EMAIL - deactivate an account")
	fmt.Println("  reactivate -email EMAIL - undo a deactivation")
	fmt.Println("  resetpassword -email EMAIL - reset an account's password and sign it out everywhere")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	ctx := context.Background()

	approveCmd := flag.NewFlagSet("approve", flag.ContinueOnError)
	approveEmail := approveCmd.String("email", "", "The instructor's email.")

	rejectCmd := flag.NewFlagSet("reject", flag.ContinueOnError)
	rejectEmail := rejectCmd.String("email", "", "The instructor's email.")
	rejectReason := rejectCmd.String("reason", "", "Why the account is rejected. It is sent to the instructor.")

	deactivateCmd := flag.NewFlagSet("deactivate", flag.ContinueOnError)
	deactivateEmail := deactivateCmd.String("email", "", "The account's email.")

	reactivateCmd := flag.NewFlagSet("reactivate", flag.ContinueOnError)
	reactivateEmail := reactivateCmd.String("email", "", "The account's email.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The account's email. The password will be prompted next.")

	// parseEmail parses the args of an -email command. It fails with errHelp when no email is given.
	parseEmail := func(cmd *flag.FlagSet, email *string) error {
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if *email == "" {
			cmd.Usage()
			return errHelp
		}
		return nil
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(ctx, args[2:])
	case "approve":
		if err := parseEmail(approveCmd, approveEmail); err != nil {
			return err
		}
		return cli.approve(ctx, *approveEmail)
	case "reject":
		if err := parseEmail(rejectCmd, rejectEmail); err != nil {
			return err
		}
		return cli.reject(ctx, *rejectEmail, *rejectReason)
	case "deactivate":
		if err := parseEmail(deactivateCmd, deactivateEmail); err != nil {
			return err
		}
		return cli.deactivate(ctx, *deactivateEmail)
	case "reactivate":
		if err := parseEmail(reactivateCmd, reactivateEmail); err != nil {
			return err
		}
		return cli.reactivate(ctx, *reactivateEmail)
	case "resetpassword":
		if err := parseEmail(resetPasswordCmd, resetPasswordEmail); err != nil {
			return err
		}
		fmt.Print("Enter password:")
		pwd, err := readPasswordFunc(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(ctx, *resetPasswordEmail, string(pwd))
	default:
		cli.printUsage()
		return errHelp
	}
}
