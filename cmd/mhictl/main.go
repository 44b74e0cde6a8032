// Command mhictl is an operator client for the MHI HVAC Core HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/nerrad567/mhi-hvac-core/internal/hvac"
)

const defaultAPI = "http://localhost:8080"

var errUsage = errors.New("usage")

func usage(w io.Writer) {
	fmt.Fprint(w, `Usage:
  mhictl [-api URL] [-no-color] COMMAND [ARGS]

Commands:
  list [-kind unit|group|all]     List entities
  get ID                          Show one entity
  set ID key=value...             Change properties of a unit or group
  preset ID NAME                  Apply a preset
  modes NAME                      Activate a mode set
  history ID [-limit N]           Show recorded state of a unit
  refresh                         Poll the controller now

Keys for set:
  power=on|off  mode=cool|dry|fan_only|heat|off  target=22.5
  fan=low|medium|high|diffuse  swing=auto|stop1..stop4
  lock=<label>  filter_reset=true

Environment:
  MHICTL_API    API base URL (default http://localhost:8080)
`)
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one command and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("mhictl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { usage(stderr) }
	apiURL := fs.String("api", envOr("MHICTL_API", defaultAPI), "API base URL")
	noColor := fs.Bool("no-color", false, "disable coloured output")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *noColor {
		color.NoColor = true
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fmt.Fprintln(stderr, "Missing command")
		usage(stderr)
		return 2
	}

	c := newClient(*apiURL)
	err := dispatch(ctx, c, rest[0], rest[1:], stdout)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		fmt.Fprintln(stderr, err)
		usage(stderr)
		return 2
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
}

func dispatch(ctx context.Context, c *client, cmd string, args []string, out io.Writer) error {
	switch cmd {
	case "list":
		fs := flag.NewFlagSet("list", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		kind := fs.String("kind", "", "entity kind filter")
		if err := fs.Parse(args); err != nil {
			return fmt.Errorf("%w: list: %v", errUsage, err)
		}
		entities, err := c.listEntities(ctx, *kind)
		if err != nil {
			return err
		}
		return renderEntities(out, entities)

	case "get":
		if len(args) != 1 {
			return fmt.Errorf("%w: get needs an entity ID", errUsage)
		}
		e, err := c.getEntity(ctx, args[0])
		if err != nil {
			return err
		}
		return renderEntity(out, e)

	case "set":
		if len(args) < 2 {
			return fmt.Errorf("%w: set needs an entity ID and at least one key=value", errUsage)
		}
		req, err := parseAssignments(args[1:])
		if err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		res, err := c.command(ctx, args[0], req)
		if err != nil {
			return err
		}
		return dispatchOutcome(out, res)

	case "preset":
		if len(args) != 2 {
			return fmt.Errorf("%w: preset needs an entity ID and a preset name", errUsage)
		}
		res, err := c.applyPreset(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		return dispatchOutcome(out, res)

	case "modes":
		if len(args) != 1 {
			return fmt.Errorf("%w: modes needs a mode set name", errUsage)
		}
		changed, err := c.activateModeSet(ctx, args[0])
		if err != nil {
			return err
		}
		if changed {
			fmt.Fprintf(out, "mode set %s activated\n", args[0])
		} else {
			fmt.Fprintf(out, "mode set %s already active\n", args[0])
		}
		return nil

	case "history":
		if len(args) < 1 {
			return fmt.Errorf("%w: history needs a unit ID", errUsage)
		}
		fs := flag.NewFlagSet("history", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		limit := fs.Int("limit", 20, "number of entries")
		if err := fs.Parse(args[1:]); err != nil {
			return fmt.Errorf("%w: history: %v", errUsage, err)
		}
		entries, err := c.history(ctx, args[0], *limit)
		if err != nil {
			return err
		}
		return renderHistory(out, entries)

	case "refresh":
		if err := c.refresh(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "refresh scheduled")
		return nil

	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func dispatchOutcome(out io.Writer, res dispatchResult) error {
	if failed := renderDispatch(out, res); failed > 0 {
		return fmt.Errorf("%d of %d units failed", failed, len(res.Results))
	}
	return nil
}

// parseAssignments turns key=value arguments into a command request.
// Values are passed through as text; the service validates them.
func parseAssignments(args []string) (hvac.CommandRequest, error) {
	var req hvac.CommandRequest
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || value == "" {
			return req, fmt.Errorf("expected key=value, got %q", arg)
		}
		v := value
		switch strings.ToLower(key) {
		case "power", "onoff", "onoff_mode":
			req.OnOff = &v
		case "mode", "hvac_mode":
			req.HVACMode = &v
		case "target", "temp", "target_temperature":
			t, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return req, fmt.Errorf("target %q is not a number", value)
			}
			req.Target = &t
		case "fan", "fan_mode":
			req.FanMode = &v
		case "swing", "swing_mode":
			req.SwingMode = &v
		case "lock", "lock_mode":
			req.LockMode = &v
		case "filter_reset":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return req, fmt.Errorf("filter_reset %q is not a boolean", value)
			}
			req.FilterReset = b
		default:
			return req, fmt.Errorf("unknown key %q", key)
		}
	}
	return req, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
