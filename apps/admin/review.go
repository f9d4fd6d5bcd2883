package main

import (
	"context"
	"fmt"
)

func (cli *commandLine) approve(ctx context.Context, email string) error {
	acc, err := cli.accountSvc.Approve(ctx, email)
	if err != nil {
		return err
	}
	fmt.Printf("%s is now %s\n", acc.Email, acc.State)
	return nil
}

func (cli *commandLine) reject(ctx context.Context, email, reason string) error {
	acc, err := cli.accountSvc.Reject(ctx, email, reason)
	if err != nil {
		return err
	}
	fmt.Printf("%s is now %s\n", acc.Email, acc.State)
	return nil
}

func (cli *commandLine) deactivate(ctx context.Context, email string) error {
	acc, err := cli.accountSvc.Deactivate(ctx, email)
	if err != nil {
		return err
	}
	fmt.Printf("%s deactivated\n", acc.Email)
	return nil
}

func (cli *commandLine) reactivate(ctx context.Context, email string) error {
	acc, err := cli.accountSvc.Reactivate(ctx, email)
	if err != nil {
		return err
	}
	fmt.Printf("%s reactivated\n", acc.Email)
	return nil
}
