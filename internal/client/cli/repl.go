package cli

import (
	"context"
	"fmt"
	"strings"
)

// Run is the interactive loop. It returns when the user exits or stdin is
// closed.
func (a *App) Run(ctx context.Context) {

	fmt.Fprintln(a.out, "Nimbus sync CLI (type 'help' for commands)")

	for {
		fmt.Fprintf(a.out, "nimbus %s > ", a.showLogin())
		line, err := a.reader.ReadString('\n')
		if err != nil {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}

		cmd := parts[0]
		args := parts[1:]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				fmt.Fprintln(a.out, "Available commands: sync, status, add, list, enable, disable, pause, resume, ping, logout, exit")
			} else {
				fmt.Fprintln(a.out, "Available commands: login, ping, exit")
			}
		case "login":
			a.Login()
		case "logout":
			a.Logout()
		case "sync":
			a.Sync(ctx, args)
		case "status":
			a.Status(ctx)
		case "add":
			a.Add(args)
		case "list":
			a.List(ctx, args)
		case "enable":
			a.SetTypeEnabled(args, true)
		case "disable":
			a.SetTypeEnabled(args, false)
		case "pause":
			if a.isLoggedIn() {
				a.manager.Pause()
				fmt.Fprintln(a.out, "Paused.")
			}
		case "resume":
			if a.isLoggedIn() {
				a.manager.Resume()
				fmt.Fprintln(a.out, "Resumed.")
			}
		case "ping":
			a.Ping(ctx)
		case "exit", "quit":
			fmt.Fprintln(a.out, "Bye!")
			return
		default:
			fmt.Fprintln(a.out, "Unknown command:", cmd)
		}
	}
}
