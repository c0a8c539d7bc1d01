package main

import (
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/medportal/portalauth/guard"
	"github.com/medportal/portalauth/verification"
)

func verifyCmd(a *app) *cobra.Command {
	var (
		quiet   bool
		retries int
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Confirm the account through the Telegram bot",
		Long: "Requests a verification code, shows the bot link and a countdown, and waits " +
			"until the backend reports the account verified or the code expires. With --retries a " +
			"new code is requested when one expires or a request fails.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c, done, err := a.client(ctx)
			if err != nil {
				return err
			}
			defer done()

			out := cmd.OutOrStdout()
			final := make(chan verification.State, 1)
			var (
				mu    sync.Mutex
				shown string
			)
			onChange := func(st verification.State) {
				mu.Lock()
				defer mu.Unlock()
				switch st.Status {
				case verification.StatusActive:
					if st.Challenge.Code != shown {
						shown = st.Challenge.Code
						printf(out, "code: %s\nopen %s or send the code to the bot\n", st.Challenge.Code, st.Challenge.Link)
					} else if !quiet && st.Challenge.Remaining%30 == 0 {
						printf(out, "%ds left\n", st.Challenge.Remaining)
					}
				case verification.StatusVerified, verification.StatusExpired, verification.StatusError:
					select {
					case final <- st:
					default:
					}
				}
			}

			coord, err := c.StartVerification(ctx, onChange)
			if err != nil && coord == nil {
				return describe(err)
			}

			for {
				var st verification.State
				select {
				case st = <-final:
				case <-ctx.Done():
					return ctx.Err()
				}

				if st.Status == verification.StatusVerified {
					// OnVerified navigates after state listeners run, so the
					// destination comes from the role rather than the navigator.
					sess, _ := c.Session()
					printf(out, "%s\nnow at %s\n", st.Message, guard.HomeFor(sess.User.Role))
					return nil
				}
				if retries <= 0 {
					return errors.New(st.Message)
				}
				retries--
				printf(out, "%s\nrequesting a new code\n", st.Message)

				if st.Status == verification.StatusError {
					err = coord.Retry(ctx)
				} else {
					err = coord.Resend(ctx)
				}
				// A failed request reaches final as an Error state; only errors that
				// leave the state untouched end the command here.
				if errors.Is(err, verification.ErrClosed) || errors.Is(err, verification.ErrInvalidTransition) {
					return describe(err)
				}
			}
		},
	}
	cmd.Flags().BoolVar(&quiet, "quiet", false, "do not print the countdown")
	cmd.Flags().IntVar(&retries, "retries", 0, "new codes to request after an expiry or failed request")
	return cmd
}
