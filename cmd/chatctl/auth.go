package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/matheus3301/quickchat/internal/api"
	"github.com/matheus3301/quickchat/internal/model"
	"github.com/matheus3301/quickchat/internal/session"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"
)

var passwordFlag = &cli.StringFlag{
	Name:    "password",
	Usage:   "Account password (prompted when omitted)",
	EnvVars: []string{"QUICKCHAT_PASSWORD"},
}

var signupCommand = &cli.Command{
	Name:  "signup",
	Usage: "Create an account and sign this profile in",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "email", Required: true},
		&cli.StringFlag{Name: "name", Usage: "Full name", Required: true},
		&cli.StringFlag{Name: "phone", Usage: "Phone number used for contact matching"},
		passwordFlag,
	},
	Action: cmdSignup,
}

var signinCommand = &cli.Command{
	Name:  "signin",
	Usage: "Sign this profile in with email and password",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "email", Required: true},
		passwordFlag,
	},
	Action: cmdSignin,
}

var signoutCommand = &cli.Command{
	Name:   "signout",
	Usage:  "Revoke the stored token and forget it",
	Before: requiresAuth,
	Action: cmdSignout,
}

var whoamiCommand = &cli.Command{
	Name:   "whoami",
	Usage:  "Show the signed-in user",
	Before: requiresAuth,
	Action: cmdWhoami,
}

func readPassword(ctx *cli.Context) (string, error) {
	if pw := ctx.String("password"); pw != "" {
		return pw, nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", errors.New("no password given and stdin is not a terminal: use --password")
	}
	fmt.Fprint(os.Stderr, "Password: ")
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(pw)), nil
}

func saveAuth(ctx *cli.Context, email string, res *api.AuthResponse) error {
	err := session.SaveCredentials(getProfile(ctx), &session.Credentials{
		Token:     res.Token,
		UserID:    res.UserID,
		Email:     email,
		ExpiresAt: res.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	if jsonOutput(ctx) {
		return outputJSON(res.Profile)
	}
	fmt.Printf("Signed in as %s (%s) on profile %q\n", res.Profile.FullName, email, getProfile(ctx))
	return nil
}

func cmdSignup(ctx *cli.Context) error {
	pw, err := readPassword(ctx)
	if err != nil {
		return err
	}
	res, err := getClient(ctx).SignUp(ctx.Context, api.SignUpRequest{
		Email:    ctx.String("email"),
		Password: pw,
		FullName: ctx.String("name"),
		Phone:    ctx.String("phone"),
	})
	if err != nil {
		return fmt.Errorf("sign up failed: %w", err)
	}
	return saveAuth(ctx, ctx.String("email"), res)
}

func cmdSignin(ctx *cli.Context) error {
	pw, err := readPassword(ctx)
	if err != nil {
		return err
	}
	res, err := getClient(ctx).SignIn(ctx.Context, ctx.String("email"), pw)
	if err != nil {
		return fmt.Errorf("sign in failed: %w", err)
	}
	return saveAuth(ctx, ctx.String("email"), res)
}

func cmdSignout(ctx *cli.Context) error {
	err := getClient(ctx).SignOut(ctx.Context)
	if err != nil && !errors.Is(err, model.ErrUnauthenticated) {
		return fmt.Errorf("sign out failed: %w", err)
	}
	if err := session.DeleteCredentials(getProfile(ctx)); err != nil {
		return err
	}
	fmt.Printf("Profile %q signed out\n", getProfile(ctx))
	return nil
}

func cmdWhoami(ctx *cli.Context) error {
	me, err := getClient(ctx).WhoAmI(ctx.Context)
	if err != nil {
		return err
	}
	if jsonOutput(ctx) {
		return outputJSON(me)
	}
	fmt.Printf("User:    %s\n", me.UserID)
	fmt.Printf("Name:    %s\n", me.Profile.FullName)
	if me.Profile.PhoneNumber != "" {
		fmt.Printf("Phone:   %s\n", me.Profile.PhoneNumber)
	}
	fmt.Printf("Profile: %s\n", getProfile(ctx))
	if exp := getCredentials(ctx).ExpiresAt; !exp.IsZero() {
		fmt.Printf("Expires: %s\n", exp.Local().Format("2006-01-02 15:04"))
	}
	return nil
}
