package main

import (
	"fmt"
	"os"

	"github.com/matheus3301/quickchat/internal/contacts"
	"github.com/matheus3301/quickchat/internal/model"
	"github.com/urfave/cli/v2"
)

var contactsCommand = &cli.Command{
	Name:  "contacts",
	Usage: "Find registered users in your address book",
	Subcommands: []*cli.Command{
		{
			Name:  "sync",
			Usage: "Upload a vCard address book and show who uses QuickChat",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "vCard (.vcf) file", Required: true},
			},
			Before: requiresAuth,
			Action: cmdContactsSync,
		},
		{
			Name:   "matches",
			Usage:  "Show registered users from the last uploaded address book",
			Before: requiresAuth,
			Action: cmdContactsMatches,
		},
	},
}

func cmdContactsSync(ctx *cli.Context) error {
	f, err := os.Open(ctx.String("file"))
	if err != nil {
		return err
	}
	raw, err := contacts.ReadVCard(f)
	_ = f.Close()
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", ctx.String("file"), err)
	}

	s, err := openSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.Close()

	matches, err := s.SyncContacts(ctx.Context, raw)
	if err != nil {
		return err
	}
	if !jsonOutput(ctx) {
		fmt.Printf("Uploaded %d contacts\n", len(raw))
	}
	return printMatches(ctx, matches)
}

func cmdContactsMatches(ctx *cli.Context) error {
	s, err := openSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.Close()

	matches, err := s.Matches(ctx.Context)
	if err != nil {
		return err
	}
	return printMatches(ctx, matches)
}

func printMatches(ctx *cli.Context, matches []model.MatchedUser) error {
	if jsonOutput(ctx) {
		return outputJSON(matches)
	}
	if len(matches) == 0 {
		fmt.Println("None of your contacts use QuickChat yet.")
		return nil
	}
	tw := newTable()
	fmt.Fprintln(tw, "ID\tNAME\tCONTACT\tPHONE")
	for _, m := range matches {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.UserID, m.FullName, m.ContactName, m.PhoneNumber)
	}
	return tw.Flush()
}
