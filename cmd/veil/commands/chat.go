package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// chat <username>: connect, log in and run an interactive session. Typed
// lines go to the peer selected with /to; slash commands drive everything
// else.
func chatCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "chat <username>",
		Short: "Connect to the relay and chat interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePassphrase(); err != nil {
				return err
			}
			if err := appCtx.Connect(); err != nil {
				return err
			}
			defer appCtx.Engine.Close()

			// Password login, or token resumption when a saved session
			// exists and no password was given.
			if err := appCtx.Engine.Login(args[0], password); err != nil {
				return err
			}
			if err := appCtx.SaveSession(); err != nil {
				return err
			}
			fmt.Println("Logged in. /to <peer> selects a recipient, /help lists commands.")

			return chatLoop()
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "account password (omit to resume a saved session)")
	return cmd
}

func chatLoop() error {
	to := ""
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue

		case line == "/quit":
			if err := appCtx.Engine.Logout(); err != nil {
				fmt.Printf("logout failed: %v\n", err)
			}
			return appCtx.SaveSession()

		case line == "/help":
			fmt.Println("/to <peer>      select message recipient")
			fmt.Println("/keyx <peer>    offer your public key to a peer")
			fmt.Println("/status <peer>  show trust state for a peer")
			fmt.Println("/quit           log out and exit")

		case strings.HasPrefix(line, "/to "):
			to = strings.TrimSpace(strings.TrimPrefix(line, "/to "))
			fmt.Printf("now messaging %s\n", to)

		case strings.HasPrefix(line, "/keyx "):
			peer := strings.TrimSpace(strings.TrimPrefix(line, "/keyx "))
			if err := appCtx.Engine.RequestKeyExchange(peer); err != nil {
				fmt.Printf("key exchange failed: %v\n", err)
			} else {
				fmt.Printf("key offered to %s\n", peer)
			}

		case strings.HasPrefix(line, "/status "):
			peer := strings.TrimSpace(strings.TrimPrefix(line, "/status "))
			st := appCtx.Engine.Trust().Status(peer)
			if !st.HasKey {
				fmt.Printf("%s: no key on file\n", peer)
			} else {
				fmt.Printf("%s: verified=%v fingerprint=%s\n", peer, st.Verified, st.Fingerprint)
			}

		case strings.HasPrefix(line, "/"):
			fmt.Printf("unknown command %q (/help)\n", strings.Fields(line)[0])

		default:
			if to == "" {
				fmt.Println("no recipient selected; use /to <peer>")
				continue
			}
			if _, err := appCtx.Engine.SendMessage(to, line); err != nil {
				fmt.Printf("send failed: %v\n", err)
			}
		}
	}
	return scanner.Err()
}
