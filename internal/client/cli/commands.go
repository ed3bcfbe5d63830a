package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nimbusbrowser/nimbus/internal/sync/change"
	"github.com/nimbusbrowser/nimbus/internal/syncerr"
)

func (a *App) Sync(ctx context.Context, args []string) {
	if !a.isLoggedIn() {
		fmt.Fprintln(a.out, "Not logged in.")
		return
	}

	var types []change.DataType
	if len(args) == 0 {
		types = a.account.EnabledTypes()
	} else {
		for _, arg := range args {
			dt := change.DataType(arg)
			if !dt.Valid() {
				fmt.Fprintf(a.out, "Unknown data type %q\n", arg)
				return
			}
			types = append(types, dt)
		}
	}

	res, err := a.manager.Sync(ctx, types)
	if err != nil {
		if syncerr.IsKind(err, syncerr.KindRateLimited) {
			fmt.Fprintf(a.out, "Rate limited; retry in %s\n", syncerr.RetryAfterOf(err))
		} else {
			fmt.Fprintln(a.out, "Sync failed:", err)
		}
		if res == nil {
			return
		}
	}

	fmt.Fprintf(a.out, "Uploaded %d, downloaded %d, conflicts resolved %d in %dms\n",
		res.ChangesUploaded, res.ChangesDownloaded, res.ConflictsResolved, res.DurationMS)
	for _, ts := range res.TypeResults {
		mark := "ok"
		if !ts.Synced {
			mark = "failed: " + ts.Error
		}
		fmt.Fprintf(a.out, "  %-10s %s\n", ts.DataType, mark)
		for _, e := range ts.EntityErrors {
			fmt.Fprintf(a.out, "    entity error: %s\n", e)
		}
	}
}

func (a *App) Status(ctx context.Context) {
	if !a.isLoggedIn() {
		fmt.Fprintln(a.out, "Not logged in.")
		return
	}
	st := a.manager.Status(ctx)
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		fmt.Fprintln(a.out, "error:", err)
		return
	}
	fmt.Fprintln(a.out, string(b))
}

// Add records a local change, as the browser would when the user edits data.
func (a *App) Add(args []string) {
	if !a.isLoggedIn() {
		fmt.Fprintln(a.out, "Not logged in.")
		return
	}
	if len(args) < 2 {
		fmt.Fprintln(a.out, "Usage: add <type> <entity-id> [json]")
		return
	}
	dt := change.DataType(args[0])
	if !dt.Valid() {
		fmt.Fprintf(a.out, "Unknown data type %q\n", args[0])
		return
	}

	data := json.RawMessage(`{}`)
	if len(args) > 2 {
		raw := strings.Join(args[2:], " ")
		if !json.Valid([]byte(raw)) {
			fmt.Fprintln(a.out, "Payload is not valid JSON.")
			return
		}
		data = json.RawMessage(raw)
	}

	c := change.New(dt, args[1], change.OpUpdate, data, a.deviceID)
	a.sources[dt].Record(c)
	fmt.Fprintf(a.out, "Recorded change %s for %s/%s\n", c.ID, dt, args[1])
}

func (a *App) List(ctx context.Context, args []string) {
	if !a.isLoggedIn() {
		fmt.Fprintln(a.out, "Not logged in.")
		return
	}
	if len(args) != 1 {
		fmt.Fprintln(a.out, "Usage: list <type>")
		return
	}
	dt := change.DataType(args[0])
	if !dt.Valid() {
		fmt.Fprintf(a.out, "Unknown data type %q\n", args[0])
		return
	}

	entities, err := a.sources[dt].GetAllData(ctx)
	if err != nil {
		fmt.Fprintln(a.out, "error:", err)
		return
	}
	if len(entities) == 0 {
		fmt.Fprintln(a.out, "(empty)")
		return
	}
	for _, c := range entities {
		fmt.Fprintf(a.out, "%s\t%s\n", c.EntityID, string(c.Data))
	}
}

func (a *App) SetTypeEnabled(args []string, enabled bool) {
	if !a.isLoggedIn() {
		fmt.Fprintln(a.out, "Not logged in.")
		return
	}
	if len(args) != 1 {
		fmt.Fprintln(a.out, "Usage: enable|disable <type>")
		return
	}
	dt := change.DataType(args[0])
	if !dt.Valid() {
		fmt.Fprintf(a.out, "Unknown data type %q\n", args[0])
		return
	}
	a.account.SetTypeEnabled(dt, enabled)
	fmt.Fprintf(a.out, "%s: enabled=%v\n", dt, enabled)
}

func (a *App) Ping(ctx context.Context) {
	if err := a.transport.Ping(ctx); err != nil {
		fmt.Fprintln(a.out, "Server unreachable:", err)
		return
	}
	fmt.Fprintln(a.out, "Server is reachable.")
}
