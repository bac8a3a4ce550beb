package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yourorg/fire-closure/pkg/auth"
	"github.com/yourorg/fire-closure/pkg/editor"
	"github.com/yourorg/fire-closure/pkg/form"
)

var (
	formQuantity   string
	formPercentage string
	formYes        bool
)

var formCmd = &cobra.Command{
	Use:   "form",
	Short: "Fill in the template-based closure form of an incident",
}

var formShowCmd = &cobra.Command{
	Use:   "show <incident-id>",
	Short: "Print the closure form of an incident with its answers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withFormEditor(cmd.Context(), args[0], func(a *app, ed *editor.FormEditor) error {
			return a.printForm(ed)
		})
	},
}

var formSetCmd = &cobra.Command{
	Use:   "set <incident-id> <field-id> [value]",
	Short: "Answer one field and save the form",
	Long: `Answer one field and save the form.

Text, number and date fields take the value as typed; an empty value clears
the answer. Checkbox and boolean fields take true or false. For select and
multiselect fields the value is the option: picking the selected option of a
select clears it, and a multiselect option is toggled. --quantity and
--percentage set the sub-value of an option that requires one.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw := ""
		if len(args) == 3 {
			raw = args[2]
		}
		return withFormEditor(cmd.Context(), args[0], func(a *app, ed *editor.FormEditor) error {
			if err := setField(ed, args[1], raw, cmd.Flags().Changed("quantity"), cmd.Flags().Changed("percentage")); err != nil {
				return err
			}
			if err := ed.Save(cmd.Context()); err != nil {
				if perr := a.printForm(ed); perr != nil {
					return perr
				}
				return describe(err)
			}
			return a.printForm(ed)
		})
	},
}

var formSaveCmd = &cobra.Command{
	Use:   "save <incident-id>",
	Short: "Validate and resubmit the current answers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withFormEditor(cmd.Context(), args[0], func(a *app, ed *editor.FormEditor) error {
			if err := ed.Save(cmd.Context()); err != nil {
				if perr := a.printForm(ed); perr != nil {
					return perr
				}
				return describe(err)
			}
			fmt.Println("saved")
			return nil
		})
	},
}

var formFinalizeCmd = &cobra.Command{
	Use:   "finalize <incident-id>",
	Short: "Finalize the incident",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withFormEditor(cmd.Context(), args[0], func(a *app, ed *editor.FormEditor) error {
			done, err := ed.Finalize(cmd.Context())
			if err != nil {
				return err
			}
			if !done {
				fmt.Println("cancelled")
				return nil
			}
			return a.printForm(ed)
		})
	},
}

func init() {
	formSetCmd.Flags().StringVar(&formQuantity, "quantity", "", "quantity of the chosen option")
	formSetCmd.Flags().StringVar(&formPercentage, "percentage", "", "percentage of the chosen option")
	formFinalizeCmd.Flags().BoolVarP(&formYes, "yes", "y", false, "do not ask for confirmation")

	formCmd.AddCommand(formShowCmd)
	formCmd.AddCommand(formSetCmd)
	formCmd.AddCommand(formSaveCmd)
	formCmd.AddCommand(formFinalizeCmd)
}

// withFormEditor opens a closure form editor for the incident and runs fn
func withFormEditor(ctx context.Context, incidentID string, fn func(*app, *editor.FormEditor) error) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.logger.Sync()

	user, err := a.session.User(ctx)
	if err != nil {
		return err
	}
	policy, err := auth.NewPolicy(a.logger)
	if err != nil {
		return err
	}

	ed := editor.NewFormEditor(a.client, editor.FormEditorOptions{
		CanFinalize: policy.Allowed(user, auth.ObjectFormulario, auth.ActionFinalize),
		IsAdmin:     user.IsAdmin,
		Confirmer:   confirmer(),
		Logger:      a.logger,
	})
	defer ed.Close()

	if err := ed.Open(ctx, incidentID); err != nil {
		return err
	}
	return fn(a, ed)
}

func (a *app) printForm(ed *editor.FormEditor) error {
	tpl := ed.Template()
	if tpl == nil {
		return editor.ErrNotOpen
	}
	out, err := a.renderer.Form(*tpl, ed.Values(), ed.Errors(), ed.Extinguished())
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

// setField applies one answer using the change handler of the field type
func setField(ed *editor.FormEditor, fieldID, raw string, withQuantity, withPercentage bool) error {
	field, ok := findField(ed.Template(), fieldID)
	if !ok {
		return fmt.Errorf("unknown field: %s", fieldID)
	}

	switch {
	case field.Type.IsBoolean():
		checked, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("field %s expects true or false", fieldID)
		}
		return ed.SetBool(fieldID, checked)

	case field.Type.IsChoice():
		if raw == "" {
			return fmt.Errorf("field %s expects an option", fieldID)
		}
		current, _ := ed.Values().Get(fieldID)
		// Setting a sub-value of an option that is already chosen must not
		// deselect it
		if !(withQuantity || withPercentage) || !chosen(current, raw) {
			var err error
			if field.Type == form.FieldTypeSelect {
				err = ed.Select(fieldID, raw)
			} else {
				err = ed.Toggle(fieldID, raw)
			}
			if err != nil {
				return err
			}
		}
		if withQuantity {
			if err := ed.SetQuantity(fieldID, raw, formQuantity); err != nil {
				return err
			}
		}
		if withPercentage {
			return ed.SetPercentage(fieldID, raw, formPercentage)
		}
		return nil

	default:
		return ed.SetText(fieldID, raw)
	}
}

func findField(tpl *form.Template, fieldID string) (form.Field, bool) {
	if tpl == nil {
		return form.Field{}, false
	}
	for _, f := range tpl.Fields() {
		if f.ID == fieldID {
			return f, true
		}
	}
	return form.Field{}, false
}

func chosen(v form.Value, option string) bool {
	switch c := v.(type) {
	case form.Choice:
		return c.Value == option
	case form.MultiChoice:
		return c.Find(option) >= 0
	}
	return false
}

// confirmer asks on the terminal unless --yes was given
func confirmer() editor.Confirmer {
	if formYes {
		return editor.AlwaysConfirm
	}
	return editor.ConfirmFunc(func(ctx context.Context, message string) (bool, error) {
		fmt.Fprintf(os.Stderr, "%s [y/N] ", message)
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return false, nil
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes", nil
	})
}
