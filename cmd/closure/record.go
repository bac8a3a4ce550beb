package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/spf13/cobra"

	"github.com/yourorg/fire-closure/pkg/closure"
	"github.com/yourorg/fire-closure/pkg/editor"
)

var recordStateFile string

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Edit the catalog-backed closure record of an incident",
}

var recordInitCmd = &cobra.Command{
	Use:   "init <incident-id>",
	Short: "Create the closure record of an incident if it does not exist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.logger.Sync()

		rec, err := a.client.InitCierre(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out, err := a.renderer.Record(rec, nil)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	},
}

var recordShowCmd = &cobra.Command{
	Use:   "show <incident-id>",
	Short: "Print the closure record of an incident",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRecordEditor(cmd.Context(), args[0], func(a *app, ed *editor.CierreEditor) error {
			return a.printRecord(ed)
		})
	},
}

var stateCmd = &cobra.Command{
	Use:   "state <incident-id>",
	Short: "Print the editable closure state of an incident as YAML",
	Long: `Print the editable closure state of an incident as YAML. The output can be
edited and sent back with "closure record save --file".`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRecordEditor(cmd.Context(), args[0], func(a *app, ed *editor.CierreEditor) error {
			return writeYAML(ed.State())
		})
	},
}

var recordSaveCmd = &cobra.Command{
	Use:   "save <incident-id>",
	Short: "Replace the closure state of an incident with a YAML file and save it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		next, err := readState(recordStateFile)
		if err != nil {
			return err
		}
		return withRecordEditor(cmd.Context(), args[0], func(a *app, ed *editor.CierreEditor) error {
			err := ed.Update(cmd.Context(), func(s *closure.FormState) {
				extinguido := s.Secuencia.ExtinguidoAt
				*s = *next
				s.Secuencia.ExtinguidoAt = extinguido
			})
			if err != nil {
				return err
			}
			if _, err := ed.Save(cmd.Context()); err != nil {
				return describe(err)
			}
			return a.printRecord(ed)
		})
	},
}

var recordFinalizeCmd = &cobra.Command{
	Use:   "finalize <incident-id>",
	Short: "Mark the incident extinguished",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRecordEditor(cmd.Context(), args[0], func(a *app, ed *editor.CierreEditor) error {
			if _, err := ed.Finalize(cmd.Context()); err != nil {
				return describe(err)
			}
			return a.printRecord(ed)
		})
	},
}

var recordReopenCmd = &cobra.Command{
	Use:   "reopen <incident-id>",
	Short: "Clear the extinguished state of an incident (administrators only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRecordEditor(cmd.Context(), args[0], func(a *app, ed *editor.CierreEditor) error {
			if _, err := ed.Reopen(cmd.Context()); err != nil {
				return describe(err)
			}
			return a.printRecord(ed)
		})
	},
}

func init() {
	recordSaveCmd.Flags().StringVarP(&recordStateFile, "file", "f", "", "YAML closure state, as printed by \"closure state\"")
	_ = recordSaveCmd.MarkFlagRequired("file")

	recordCmd.AddCommand(recordInitCmd)
	recordCmd.AddCommand(recordShowCmd)
	recordCmd.AddCommand(recordSaveCmd)
	recordCmd.AddCommand(recordFinalizeCmd)
	recordCmd.AddCommand(recordReopenCmd)
}

// withRecordEditor opens a closure record editor for the incident and runs fn
func withRecordEditor(ctx context.Context, incidentID string, fn func(*app, *editor.CierreEditor) error) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.logger.Sync()

	ed := editor.NewCierreEditor(a.client, a.session, editor.CierreEditorOptions{
		PageSize: a.cfg.Catalogs.PageSize,
		Mapper:   a.mapper,
		Logger:   a.logger,
	})
	defer ed.Close()

	if err := ed.Open(ctx, incidentID); err != nil {
		return describe(err)
	}
	for _, item := range ed.Unmapped() {
		a.logger.Warn("technique is not mapped and will not be saved",
			zap.String("id", item.ID),
			zap.String("nombre", item.Nombre))
	}
	return fn(a, ed)
}

func (a *app) printRecord(ed *editor.CierreEditor) error {
	out, err := a.renderer.Record(ed.Record(), ed.Catalogs())
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

func readState(path string) (*closure.FormState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}
	state := closure.NewFormState()
	if err := yaml.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}
	return state, nil
}

// describe expands an editor validation error into one line per field
func describe(err error) error {
	var verr *editor.ValidationError
	if !errors.As(err, &verr) {
		return err
	}
	keys := make([]string, 0, len(verr.Fields))
	for k := range verr.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(os.Stderr, "  %s: %s\n", k, verr.Fields[k])
	}
	return fmt.Errorf("%d field(s) rejected, nothing was saved", len(keys))
}
