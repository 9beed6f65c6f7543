package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"rssauth/config"
	"rssauth/internal/delivery/api/validator"
	"rssauth/internal/domain/lifecycle"
	"rssauth/internal/infra/auth"
	logs "rssauth/internal/infra/log"
	"rssauth/internal/infra/persistence"
	"rssauth/internal/usecase"
	"rssauth/internal/usecase/impl"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"golang.org/x/term"
)

// readPassword and isTerminal are seams for tests.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

func createAdminCmd() *cobra.Command {
	var username, email string

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an account with the admin role",
		Long: `create-admin provisions an admin account directly in the credential store.
The password is read from the terminal without echo, or from the first line
of stdin when stdin is not a terminal.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := promptPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			return runCreateAdmin(cmd.Context(), cmd.OutOrStdout(), &usecase.AdminInput{
				Username: username,
				Email:    email,
				Password: password,
			})
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Admin username")
	cmd.Flags().StringVarP(&email, "email", "e", "", "Admin email")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

// promptPassword reads the password twice from a terminal, or once from piped input.
func promptPassword(in io.Reader, out io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && isTerminal(int(f.Fd())) {
		fd := int(f.Fd())

		fmt.Fprint(out, "Password: ")
		first, err := readPassword(fd)
		fmt.Fprintln(out)
		if err != nil {
			return "", errors.Wrap(err, "read password")
		}

		fmt.Fprint(out, "Confirm password: ")
		second, err := readPassword(fd)
		fmt.Fprintln(out)
		if err != nil {
			return "", errors.Wrap(err, "read password confirmation")
		}

		if string(first) != string(second) {
			return "", errors.New("passwords do not match")
		}

		return string(first), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", errors.Wrap(err, "read password from stdin")
	}

	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("empty password on stdin")
	}

	return password, nil
}

func runCreateAdmin(ctx context.Context, out io.Writer, input *usecase.AdminInput) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		cfg   *config.Config
		admin usecase.AdminUsecase
	)

	app := fx.New(
		fx.NopLogger,
		fx.Provide(
			config.New,
			logs.New,
			persistence.NewUserRepository,
			auth.NewPasswordHasher,
			auth.NewJWTService,
			validator.NewInputValidator,
			impl.NewAdminService,
		),
		fx.Populate(&cfg, &admin),
	)
	if err := app.Err(); err != nil {
		return err
	}

	if cfg.Store.Driver == config.StoreDriverMemory {
		return errors.New("create-admin needs a persistent store, store.driver is memory")
	}

	startCtx, cancel := context.WithTimeout(ctx, lifecycle.DefaultTimeout)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return errors.Wrap(err, "start credential store")
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), lifecycle.DefaultTimeout)
		defer stopCancel()
		_ = app.Stop(stopCtx)
	}()

	profile, err := admin.CreateAdmin(ctx, input)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Created admin %s (%s)\n", profile.Username, profile.ID)

	return nil
}
