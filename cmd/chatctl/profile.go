package main

import (
	"fmt"
	"strings"

	"github.com/matheus3301/quickchat/internal/model"
	"github.com/urfave/cli/v2"
)

var profileCommand = &cli.Command{
	Name:  "profile",
	Usage: "Manage your public profile",
	Subcommands: []*cli.Command{
		{
			Name:      "set-name",
			Usage:     "Change your display name",
			ArgsUsage: "NAME",
			Before:    requiresAuth,
			Action:    cmdProfileSetName,
		},
	},
}

var usersCommand = &cli.Command{
	Name:   "users",
	Usage:  "List registered users",
	Before: requiresAuth,
	Action: cmdUsers,
}

func cmdProfileSetName(ctx *cli.Context) error {
	name := strings.TrimSpace(strings.Join(ctx.Args().Slice(), " "))
	if name == "" {
		return fmt.Errorf("you must specify a name")
	}
	s, err := openSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.Close()

	p, err := s.UpdateName(ctx.Context, name)
	if err != nil {
		return err
	}
	if jsonOutput(ctx) {
		return outputJSON(p)
	}
	fmt.Printf("Name changed to %s\n", p.FullName)
	return nil
}

func cmdUsers(ctx *cli.Context) error {
	profiles, err := getClient(ctx).ListProfiles(ctx.Context)
	if err != nil {
		return err
	}
	if jsonOutput(ctx) {
		return outputJSON(profiles)
	}
	self := getCredentials(ctx).UserID
	tw := newTable()
	fmt.Fprintln(tw, "ID\tNAME\tPHONE")
	for _, p := range profiles {
		name := p.FullName
		if p.UserID == self {
			name += " (you)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.UserID, name, p.PhoneNumber)
	}
	return tw.Flush()
}

// resolveUser accepts a user id or an unambiguous full name.
func resolveUser(ctx *cli.Context, arg string) (model.Profile, error) {
	profiles, err := getClient(ctx).ListProfiles(ctx.Context)
	if err != nil {
		return model.Profile{}, err
	}
	var byName []model.Profile
	for _, p := range profiles {
		if p.UserID == arg {
			return p, nil
		}
		if strings.EqualFold(p.FullName, arg) {
			byName = append(byName, p)
		}
	}
	switch len(byName) {
	case 0:
		return model.Profile{}, fmt.Errorf("no user %q", arg)
	case 1:
		return byName[0], nil
	default:
		return model.Profile{}, fmt.Errorf("%d users are named %q: use the user id", len(byName), arg)
	}
}
