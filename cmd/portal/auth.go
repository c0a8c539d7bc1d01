package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/medportal/portalauth"
	"github.com/medportal/portalauth/api"
	"github.com/medportal/portalauth/session"
)

func loginCmd(a *app) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and save the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, done, err := a.client(ctx)
			if err != nil {
				return err
			}
			defer done()

			u, err := c.Login(ctx, email, password)
			if err != nil {
				return describe(err)
			}
			printUser(cmd, u)
			printf(cmd.OutOrStdout(), "now at %s\n", c.Navigator().Current())
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func registerCmd(a *app) *cobra.Command {
	var reg api.Registration
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, done, err := a.client(ctx)
			if err != nil {
				return err
			}
			defer done()

			u, err := c.Register(ctx, reg)
			if err != nil {
				return describe(err)
			}
			printUser(cmd, u)
			if !u.Verified {
				printf(cmd.OutOrStdout(), "run 'portal verify' to confirm your account with the Telegram bot\n")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&reg.Name, "name", "", "full name")
	cmd.Flags().StringVar(&reg.Email, "email", "", "account email")
	cmd.Flags().StringVar(&reg.Password, "password", "", "account password")
	cmd.Flags().StringVar(&reg.Role, "role", "patient", "patient or doctor")
	cmd.Flags().StringVar(&reg.Phone, "phone", "", "phone number")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func logoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, done, err := a.client(ctx)
			if err != nil {
				return err
			}
			defer done()

			if err := c.Logout(ctx); err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "signed out\n")
			return nil
		},
	}
}

func whoamiCmd(a *app) *cobra.Command {
	var remote bool
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, done, err := a.client(ctx)
			if err != nil {
				return err
			}
			defer done()

			sess, ok := c.Session()
			if !ok {
				return errors.New("not signed in")
			}
			u := sess.User
			if remote {
				if u, err = c.Me(ctx); err != nil {
					return describe(err)
				}
			}
			printUser(cmd, u)
			return nil
		},
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "ask the backend instead of the saved session")
	return cmd
}

func openCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "open <path>",
		Short: "Navigate to a view, applying the route guard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, done, err := a.client(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			d, err := c.Open(args[0])
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "%s -> %s\n", d.State, d.Target)
			return nil
		},
	}
}

func printUser(cmd *cobra.Command, u session.User) {
	status := "unverified"
	if u.Verified {
		status = "verified"
	}
	printf(cmd.OutOrStdout(), "%s <%s> role=%s %s\n", u.Name, u.Email, u.Role, status)
}

// describe turns an expired session into a hint to sign in again.
func describe(err error) error {
	if errors.Is(err, portalauth.ErrAuthExpired) {
		return errors.New("session expired, sign in again")
	}
	return err
}
