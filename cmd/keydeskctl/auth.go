package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"keydesk/client"
	"keydesk/pkg/session"
)

func newLoginCommand(cfgPath *string) *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate and persist the session locally",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if password == "" {
				password = os.Getenv("KEYDESK_PASSWORD")
			}
			if err := a.auth.Login(ctx, username, password); err != nil {
				return friendly(err, a.auth.State().Error)
			}

			state := a.auth.State()
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", state.User.Username)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Account username")
	cmd.Flags().StringVar(&password, "password", "", "Account password (falls back to KEYDESK_PASSWORD)")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func newRegisterCommand(cfgPath *string) *cobra.Command {
	var req client.RegisterRequest

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a new account",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if req.Password == "" {
				req.Password = os.Getenv("KEYDESK_PASSWORD")
			}
			if err := a.auth.Register(ctx, req); err != nil {
				return friendly(err, a.auth.State().Error)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Registration successful. You can now log in.")
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Username, "username", "", "Desired username")
	cmd.Flags().StringVar(&req.Password, "password", "", "Desired password (falls back to KEYDESK_PASSWORD)")
	cmd.Flags().StringVar(&req.Email, "email", "", "Optional email address")
	cmd.Flags().StringVar(&req.ReferralCode, "referral-code", "", "Optional referral code")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func newLogoutCommand(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the local session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			a.auth.Logout(ctx)
			a.dashboard.Clear()

			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}

func newStatusCommand(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			state := a.auth.State()
			if !state.Authenticated {
				fmt.Fprintln(cmd.OutOrStdout(), "Not logged in.")
				return nil
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Logged in as %s (%s)\n", state.User.Username, state.User.Role)
			if exp, ok := session.ExpiresAt(state.Token); ok {
				fmt.Fprintf(out, "Session expires %s\n", exp.Local().Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
}

func newSettingsCommand(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Account settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newChangePasswordCommand(cfgPath))
	return cmd
}

func newChangePasswordCommand(cfgPath *string) *cobra.Command {
	var current, next string

	cmd := &cobra.Command{
		Use:   "change-password",
		Short: "Rotate the account password",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.requireSession(); err != nil {
				return err
			}

			message, err := a.auth.ChangePassword(ctx, current, next)
			if err != nil {
				return friendly(err, a.auth.State().Error)
			}
			fmt.Fprintln(cmd.OutOrStdout(), message)
			return nil
		},
	}

	cmd.Flags().StringVar(&current, "current", "", "Current password")
	cmd.Flags().StringVar(&next, "new", "", "New password")
	_ = cmd.MarkFlagRequired("current")
	_ = cmd.MarkFlagRequired("new")
	return cmd
}
