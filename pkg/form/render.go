package form

import "strconv"

// Widget names the editing affordance a field is rendered with
type Widget string

const (
	WidgetTextInput       Widget = "text_input"
	WidgetTextArea        Widget = "text_area"
	WidgetNumberInput     Widget = "number_input"
	WidgetPercentageInput Widget = "percentage_input"
	WidgetDatePicker      Widget = "date_picker"
	WidgetDateTimePicker  Widget = "datetime_picker"
	WidgetSingleChoice    Widget = "single_choice"
	WidgetMultiChoice     Widget = "multi_choice"
	WidgetCheckbox        Widget = "checkbox"
	WidgetSwitch          Widget = "switch"
)

var widgets = map[FieldType]Widget{
	FieldTypeText:        WidgetTextInput,
	FieldTypeTextarea:    WidgetTextArea,
	FieldTypeNumber:      WidgetNumberInput,
	FieldTypePercentage:  WidgetPercentageInput,
	FieldTypeDate:        WidgetDatePicker,
	FieldTypeDateTime:    WidgetDateTimePicker,
	FieldTypeSelect:      WidgetSingleChoice,
	FieldTypeMultiSelect: WidgetMultiChoice,
	FieldTypeCheckbox:    WidgetCheckbox,
	FieldTypeBoolean:     WidgetSwitch,
}

// FieldView is the editable view model of one field
type FieldView struct {
	FieldID     string       `json:"field_id"`
	Type        FieldType    `json:"type"`
	Widget      Widget       `json:"widget"`
	Label       string       `json:"label"`
	Description string       `json:"description,omitempty"`
	Placeholder string       `json:"placeholder,omitempty"`
	Unit        string       `json:"unit,omitempty"`
	Required    bool         `json:"required"`
	Text        string       `json:"text,omitempty"`
	Checked     bool         `json:"checked,omitempty"`
	Options     []OptionView `json:"options,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// OptionView is one option as shown to the responder. The quantity and
// percentage inputs only appear while the option is selected.
type OptionView struct {
	Value           string   `json:"value"`
	Label           string   `json:"label"`
	Selected        bool     `json:"selected"`
	ShowQuantity    bool     `json:"show_quantity,omitempty"`
	ShowPercentage  bool     `json:"show_percentage,omitempty"`
	QuantityLabel   string   `json:"quantity_label,omitempty"`
	PercentageLabel string   `json:"percentage_label,omitempty"`
	Quantity        *float64 `json:"quantity,omitempty"`
	Percentage      *float64 `json:"percentage,omitempty"`
}

// Render builds the view model of a field from its definition and current
// value. Fields of an unknown type render nothing (nil).
func Render(field Field, current Value) *FieldView {
	widget, ok := widgets[field.Type]
	if !ok {
		return nil
	}

	view := &FieldView{
		FieldID:     field.ID,
		Type:        field.Type,
		Widget:      widget,
		Label:       field.Name,
		Description: field.Description,
		Placeholder: field.Placeholder,
		Unit:        field.Unit,
		Required:    field.Required,
	}

	switch {
	case field.Type.IsChoice():
		view.Options = renderOptions(field, current)
	case field.Type.IsBoolean():
		if s, ok := current.(Scalar); ok {
			view.Checked, _ = s.V.(bool)
		}
	default:
		if s, ok := current.(Scalar); ok {
			view.Text = FormatScalar(s)
		}
	}

	return view
}

func renderOptions(field Field, current Value) []OptionView {
	var selected MultiChoice
	switch v := current.(type) {
	case Choice:
		if v.Value != "" {
			selected = MultiChoice{v}
		}
	case MultiChoice:
		selected = v
	}

	views := make([]OptionView, 0, len(field.Options))
	for _, o := range field.Options {
		ov := OptionView{
			Value:           o.Value,
			Label:           o.Label,
			QuantityLabel:   o.QuantityLabel,
			PercentageLabel: o.PercentageLabel,
		}
		if i := selected.Find(o.Value); i >= 0 {
			ov.Selected = true
			ov.ShowQuantity = o.RequiresQuantity
			ov.ShowPercentage = o.RequiresPercentage
			ov.Quantity = selected[i].Quantity
			ov.Percentage = selected[i].Percentage
		}
		views = append(views, ov)
	}
	return views
}

// FormatScalar renders a scalar for a text input
func FormatScalar(s Scalar) string {
	switch v := s.V.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}
