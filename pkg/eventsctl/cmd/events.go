package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	v1 "github.com/telekom/eventsctl/api/v1"
	"github.com/telekom/eventsctl/pkg/eventsctl/client"
	"github.com/telekom/eventsctl/pkg/eventsctl/output"
)

func NewEventsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "events",
		Aliases: []string{"event", "ev"},
		Short:   "Manage events",
	}
	cmd.AddCommand(
		newEventsListCommand(),
		newEventsGetCommand(),
		newEventsCreateCommand(),
		newEventsUpdateCommand(),
		newEventsDeleteCommand(),
	)
	return cmd
}

func newEventsListCommand() *cobra.Command {
	var (
		page     int
		pageSize int
		all      bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List events",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			return withEvents(cmd, func(ctx context.Context, events *client.EventService) error {
				items, err := events.List(ctx)
				if err != nil {
					return err
				}
				items, footer := paginate(items, page, pageSize, all)
				if err := writeEvents(rt, items); err != nil {
					return err
				}
				if footer != "" {
					_, _ = fmt.Fprintln(rt.ErrWriter(), footer)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "Events per page; 0 shows all")
	cmd.Flags().BoolVar(&all, "all", false, "Ignore paging and show all events")
	return cmd
}

func newEventsGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Show one event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			return withEvents(cmd, func(ctx context.Context, events *client.EventService) error {
				event, err := events.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return writeEvent(rt, event)
			})
		},
	}
}

type eventFlags struct {
	title       string
	date        string
	description string
	location    string
}

func (f *eventFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.title, "title", "", "Event title")
	cmd.Flags().StringVar(&f.date, "date", "", "Event date, RFC3339 or YYYY-MM-DD[ HH:MM]")
	cmd.Flags().StringVar(&f.description, "description", "", "Event description")
	cmd.Flags().StringVar(&f.location, "location", "", "Event location")
}

// apply overlays the flags the user set onto spec.
func (f *eventFlags) apply(cmd *cobra.Command, spec *v1.EventSpec) error {
	flags := cmd.Flags()
	if flags.Changed("title") {
		spec.Title = f.title
	}
	if flags.Changed("date") {
		date, err := parseEventDate(f.date)
		if err != nil {
			return err
		}
		spec.Date = date
	}
	if flags.Changed("description") {
		spec.Description = f.description
	}
	if flags.Changed("location") {
		spec.Location = f.location
	}
	return spec.Validate()
}

func newEventsCreateCommand() *cobra.Command {
	var flags eventFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an event",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			var spec v1.EventSpec
			if err := flags.apply(cmd, &spec); err != nil {
				return err
			}
			return withEvents(cmd, func(ctx context.Context, events *client.EventService) error {
				event, err := events.Create(ctx, spec)
				if err != nil {
					return err
				}
				return writeEvent(rt, event)
			})
		},
	}
	flags.bind(cmd)
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func newEventsUpdateCommand() *cobra.Command {
	var flags eventFlags
	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Change fields of an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			return withEvents(cmd, func(ctx context.Context, events *client.EventService) error {
				current, err := events.Get(ctx, args[0])
				if err != nil {
					return err
				}
				spec := v1.EventSpec{
					Date:        current.Date,
					Title:       current.Title,
					Description: current.Description,
					Location:    current.Location,
				}
				if err := flags.apply(cmd, &spec); err != nil {
					return err
				}
				event, err := events.Update(ctx, args[0], spec)
				if err != nil {
					return err
				}
				return writeEvent(rt, event)
			})
		},
	}
	flags.bind(cmd)
	return cmd
}

func newEventsDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			return withEvents(cmd, func(ctx context.Context, events *client.EventService) error {
				if err := events.Delete(ctx, args[0]); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(rt.Writer(), "Deleted event %s\n", args[0])
				return nil
			})
		},
	}
}

var eventDateLayouts = []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02T15:04", "2006-01-02"}

func parseEventDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range eventDateLayouts {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q; use RFC3339 or YYYY-MM-DD[ HH:MM]", value)
}

func writeEvents(rt *runtimeState, events []v1.Event) error {
	format, err := output.ParseFormat(rt.OutputFormat())
	if err != nil {
		return err
	}
	switch format {
	case output.FormatTable:
		output.WriteEventTable(rt.Writer(), events)
		return nil
	case output.FormatWide:
		output.WriteEventTableWide(rt.Writer(), events)
		return nil
	default:
		return output.WriteObject(rt.Writer(), format, events)
	}
}

func writeEvent(rt *runtimeState, event *v1.Event) error {
	format, err := output.ParseFormat(rt.OutputFormat())
	if err != nil {
		return err
	}
	switch format {
	case output.FormatTable, output.FormatWide:
		return writeEvents(rt, []v1.Event{*event})
	default:
		return output.WriteObject(rt.Writer(), format, event)
	}
}
