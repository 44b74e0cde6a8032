package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/nerrad567/mhi-hvac-core/internal/hvac"
)

var (
	onColor      = color.New(color.FgGreen)
	offColor     = color.New(color.FgHiBlack)
	mixedColor   = color.New(color.FgYellow)
	missingColor = color.New(color.FgRed)
	headerColor  = color.New(color.Bold)
)

// fieldText renders an aggregated field: a value, "mixed" or "-".
func fieldText(v any) string {
	switch x := v.(type) {
	case nil:
		return "-"
	case bool:
		if x {
			return "on"
		}
		return "off"
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

// powerText colours the power column: green on, grey off, yellow mixed and
// red when the entity is unavailable.
func powerText(e entity) string {
	if !e.Status.Available {
		return missingColor.Sprint("unavailable")
	}
	switch p := e.Status.Power.(type) {
	case bool:
		if p {
			return onColor.Sprint("on")
		}
		return offColor.Sprint("off")
	case string:
		if p == hvac.MixedValue {
			return mixedColor.Sprint(p)
		}
		return p
	default:
		return missingColor.Sprint("-")
	}
}

func valueText(v any) string {
	s := fieldText(v)
	if s == hvac.MixedValue {
		return mixedColor.Sprint(s)
	}
	return s
}

func renderEntities(w io.Writer, entities []entity) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	headerColor.Fprintln(tw, "ID\tKIND\tPOWER\tMODE\tTARGET\tROOM\tFAN\tPRESET") //nolint:errcheck // flushed below
	for _, e := range entities {
		preset := e.Attributes.Preset
		if preset == "" {
			preset = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ID, e.Kind, powerText(e),
			valueText(e.Status.Mode), valueText(e.Status.Target),
			valueText(e.Status.RoomTemp), valueText(e.Status.Fan), preset)
	}
	return tw.Flush()
}

func renderEntity(w io.Writer, e entity) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	rows := [][2]string{
		{"id", e.ID},
		{"name", e.Name},
		{"kind", e.Kind},
		{"power", powerText(e)},
		{"hvac_mode", valueText(e.Status.Mode)},
		{"target_temperature", valueText(e.Status.Target)},
		{"room_temperature", valueText(e.Status.RoomTemp)},
		{"fan_mode", valueText(e.Status.Fan)},
		{"swing_mode", valueText(e.Status.Swing)},
		{"lock_mode", e.Status.Lock},
		{"filter_sign", strconv.FormatBool(e.Status.Filter)},
		{"allowed_modes", fmt.Sprint(e.Attributes.AllowedModes)},
		{"bounds", fmt.Sprintf("%g-%g", e.Attributes.Bounds.Min, e.Attributes.Bounds.Max)},
	}
	if e.Kind != string(hvac.EntityUnit) {
		rows = append(rows, [2]string{"members", fmt.Sprint(e.Members)})
	}
	if e.Attributes.Preset != "" {
		rows = append(rows, [2]string{"preset", e.Attributes.Preset})
	}
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\n", headerColor.Sprint(r[0]), r[1])
	}
	return tw.Flush()
}

func renderDispatch(w io.Writer, res dispatchResult) (failed int) {
	for _, r := range res.Results {
		if r.OK {
			fmt.Fprintf(w, "%s %s\n", onColor.Sprint("ok  "), r.Unit)
			continue
		}
		failed++
		fmt.Fprintf(w, "%s %s: %s\n", missingColor.Sprint("FAIL"), r.Unit, r.Error)
	}
	return failed
}

func renderHistory(w io.Writer, entries []hvac.HistoryEntry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	headerColor.Fprintln(tw, "TIME\tSOURCE\tPOWER\tMODE\tTARGET\tROOM\tFAN") //nolint:errcheck // flushed below
	for _, h := range entries {
		room := "-"
		if h.Status.RoomTempValid {
			room = strconv.FormatFloat(h.Status.RoomTemp, 'f', -1, 64)
		}
		power := offColor.Sprint("off")
		if h.Status.Power {
			power = onColor.Sprint("on")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%g\t%s\t%s\n",
			h.CreatedAt.Local().Format(time.DateTime), h.Source, power,
			h.Status.Mode, h.Status.Target, room, h.Status.Fan)
	}
	return tw.Flush()
}
