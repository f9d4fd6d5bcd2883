package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/gatheria/core"
	"github.com/trezcool/gatheria/core/account"
)

func (cli *commandLine) resetPassword(ctx context.Context, email, pwd string) error {
	data := account.SetPassword{Email: email, Password: pwd}
	if err := data.Validate(cli.validate); err != nil {
		var vErrs validator.ValidationErrors
		if errors.As(err, &vErrs) {
			msgs := make([]string, 0, len(vErrs))
			for fld, msg := range core.TranslateValidationErrors(vErrs, cli.translator) {
				msgs = append(msgs, fld+": "+msg)
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	if err := cli.accountSvc.SetPassword(ctx, data.Email, data.Password); err != nil {
		return err
	}

	acc, err := cli.accountSvc.GetByEmail(ctx, data.Email)
	if err != nil {
		return errors.Wrap(err, "finding account")
	}
	n, err := cli.sessionSvc.RevokeAll(ctx, acc.ID)
	if err != nil {
		return err
	}
	fmt.Printf("password updated, %d session(s) signed out\n", n)
	return nil
}
