package form

// The functions below are the change handlers of the rendered fields. Each
// one is pure: it takes the field and its current value and returns the next
// value, leaving the input untouched.

// SetText applies typed text to a text-like or numeric field. Numeric fields
// store nil for text that is not a number.
func SetText(field Field, raw string) Value {
	if field.Type.IsNumeric() {
		if n := ParseNumber(raw); n != nil {
			return Scalar{V: *n}
		}
		return Scalar{V: nil}
	}
	return Scalar{V: raw}
}

// SetBool applies a checkbox or switch change
func SetBool(field Field, checked bool) Value {
	return Scalar{V: checked}
}

// Select picks an option of a select field. Picking a different option
// replaces the whole previous answer, sub-values included. Picking the
// selected option again clears the answer.
func Select(field Field, current Value, optionValue string) Value {
	opt, ok := field.Option(optionValue)
	if !ok {
		return current
	}
	if c, isChoice := current.(Choice); isChoice && c.Value == optionValue {
		return nil
	}
	return Choice{Value: opt.Value, Compound: opt.Compound()}
}

// Toggle adds or removes an option of a multiselect field. Removing drops the
// option's sub-values with it, so toggling twice restores the prior state.
func Toggle(field Field, current Value, optionValue string) Value {
	opt, ok := field.Option(optionValue)
	if !ok {
		return current
	}
	selected, _ := current.(MultiChoice)
	if i := selected.Find(optionValue); i >= 0 {
		next := make(MultiChoice, 0, len(selected)-1)
		next = append(next, selected[:i]...)
		next = append(next, selected[i+1:]...)
		return next
	}
	next := make(MultiChoice, 0, len(selected)+1)
	next = append(next, selected...)
	return append(next, Choice{Value: opt.Value, Compound: opt.Compound()})
}

// SetQuantity sets the quantity sub-answer of a selected option that requires one
func SetQuantity(field Field, current Value, optionValue, raw string) Value {
	opt, ok := field.Option(optionValue)
	if !ok || !opt.RequiresQuantity {
		return current
	}
	return updateChoice(current, optionValue, func(c *Choice) {
		c.Quantity = ParseNumber(raw)
	})
}

// SetPercentage sets the percentage sub-answer of a selected option that requires one
func SetPercentage(field Field, current Value, optionValue, raw string) Value {
	opt, ok := field.Option(optionValue)
	if !ok || !opt.RequiresPercentage {
		return current
	}
	return updateChoice(current, optionValue, func(c *Choice) {
		c.Percentage = ParseNumber(raw)
	})
}

func updateChoice(current Value, optionValue string, fn func(*Choice)) Value {
	switch v := current.(type) {
	case Choice:
		if v.Value != optionValue {
			return current
		}
		fn(&v)
		return v
	case MultiChoice:
		i := v.Find(optionValue)
		if i < 0 {
			return current
		}
		next := append(MultiChoice(nil), v...)
		fn(&next[i])
		return next
	default:
		return current
	}
}
