package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dominicdesy/intelia-expert-sub011/internal/auth"
	"github.com/dominicdesy/intelia-expert-sub011/internal/config"
	"github.com/dominicdesy/intelia-expert-sub011/internal/storage"
)

var (
	loginEmail    string
	loginRemember bool
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the authenticated session",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Record login preferences for the next session",
	Long: `Login stores the remember-me preference and, when enabled, the last
email used, so the next sign-in can be prefilled. Credentials themselves
come from the INTELIA_USER_ID and INTELIA_ACCESS_TOKEN environment.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		paths := config.GetPaths()
		if err := paths.EnsurePaths(); err != nil {
			return fmt.Errorf("failed to prepare data directories: %w", err)
		}
		prefs := storage.New(paths.PrefsPath())

		email := loginEmail
		if email == "" {
			email = os.Getenv("INTELIA_EMAIL")
		}
		if err := prefs.SaveLoginPrefs(storage.LoginPrefs{
			RememberMe: loginRemember,
			LastEmail:  email,
		}); err != nil {
			return fmt.Errorf("failed to save login preferences: %w", err)
		}

		if loginRemember && email != "" {
			fmt.Printf("Remembering %s for the next sign-in\n", email)
		} else {
			fmt.Println("Login preferences saved")
		}
		return nil
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and clear the local session",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newAppClient(cmd.Context())
		defer client.close()

		client.coord.Logout(cmd.Context())
		fmt.Println("Signed out")
		return nil
	},
}

var authWhoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the authenticated user",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newAppClient(cmd.Context())
		defer client.close()

		switch client.coord.State() {
		case auth.StateAuthenticated:
			user := client.coord.User()
			fmt.Printf("User:     %s\n", user.ID)
			if user.Email != "" {
				fmt.Printf("Email:    %s\n", user.Email)
			}
			if user.Name != "" {
				fmt.Printf("Name:     %s\n", user.Name)
			}
			fmt.Printf("Type:     %s\n", user.UserType)
			fmt.Printf("Language: %s\n", user.Language)
			return nil
		case auth.StateError:
			return fmt.Errorf("session lookup failed; try again")
		default:
			return fmt.Errorf("not signed in (set INTELIA_USER_ID and INTELIA_ACCESS_TOKEN)")
		}
	},
}

func init() {
	authLoginCmd.Flags().StringVar(&loginEmail, "email", "", "Email to remember for the next sign-in")
	authLoginCmd.Flags().BoolVar(&loginRemember, "remember", false, "Remember the email between sessions")

	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authWhoamiCmd)
}
