package template

import (
	"context"
	"errors"
	"testing"

	"gorm.io/gorm"

	"github.com/yourorg/fire-closure/pkg/db"
	"github.com/yourorg/fire-closure/pkg/db/models"
	"github.com/yourorg/fire-closure/pkg/form"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.NewConnection(&db.Config{Driver: db.DriverSQLite, Path: ":memory:", LogLevel: "silent"}, nil)
	if err != nil {
		t.Fatalf("NewConnection() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := conn.AutoMigrate(); err != nil {
		t.Fatalf("AutoMigrate() error = %v", err)
	}
	return conn.DB()
}

func TestTemplateLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newTestDB(t), nil)

	first, err := m.Create(ctx, "t1", &CreateTemplateRequest{Name: "Cierre 2024"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	second, err := m.Create(ctx, "t1", &CreateTemplateRequest{Name: "Cierre 2025"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if _, err := m.Active(ctx, "t1"); !errors.Is(err, ErrNoActiveTemplate) || !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("Active() error = %v, want no active template", err)
	}

	if _, err := m.Activate(ctx, "t1", first.ID); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	if _, err := m.Activate(ctx, "t1", second.ID); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}

	active, err := m.Active(ctx, "t1")
	if err != nil {
		t.Fatalf("Active() error = %v", err)
	}
	if active.ID != second.ID {
		t.Fatalf("active = %s, want %s", active.ID, second.ID)
	}

	if err := m.Delete(ctx, "t1", second.ID); !errors.Is(err, ErrTemplateActive) {
		t.Fatalf("Delete(active) error = %v, want ErrTemplateActive", err)
	}
	if err := m.Delete(ctx, "t1", first.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := m.Get(ctx, "t1", first.ID); !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("Get(deleted) error = %v, want ErrNotFound", err)
	}

	list, total, err := m.List(ctx, &ListTemplatesRequest{TenantID: "t1"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 1 || len(list) != 1 {
		t.Fatalf("List() = %d/%d, want 1", len(list), total)
	}

	if _, err := m.Get(ctx, "other", second.ID); !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("Get(other tenant) error = %v, want ErrNotFound", err)
	}
}

func TestStructureOrderingAndVersion(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newTestDB(t), nil)

	tpl, err := m.Create(ctx, "t1", &CreateTemplateRequest{Name: "Cierre"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	later, err := m.AddSection(ctx, "t1", tpl.ID, &SectionRequest{Name: "Medios", Order: 2})
	if err != nil {
		t.Fatalf("AddSection() error = %v", err)
	}
	first, err := m.AddSection(ctx, "t1", tpl.ID, &SectionRequest{Name: "General", Order: 1})
	if err != nil {
		t.Fatalf("AddSection() error = %v", err)
	}

	fields := []FieldRequest{
		{Name: "Observaciones", Type: "textarea", Order: 1},
		{Name: "Apoyo", Type: "select", Order: 0, Required: true, Options: []form.Option{
			{Value: "aereo", Label: "Aéreo", RequiresPercentage: true},
			{Value: "terrestre", Label: "Terrestre"},
		}},
		{Name: "Notas", Type: "text", Order: 1},
	}
	for i := range fields {
		if _, err := m.AddField(ctx, "t1", first.ID, &fields[i]); err != nil {
			t.Fatalf("AddField(%s) error = %v", fields[i].Name, err)
		}
	}

	got, err := m.Get(ctx, "t1", tpl.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Version != 1+2+3 {
		t.Fatalf("version = %d, want 6", got.Version)
	}

	f := ToForm(got)
	if len(f.Sections) != 2 || f.Sections[0].ID != first.ID || f.Sections[1].ID != later.ID {
		t.Fatalf("sections out of order: %+v", f.Sections)
	}
	var names []string
	for _, field := range f.Sections[0].Fields {
		names = append(names, field.Name)
	}
	want := []string{"Apoyo", "Observaciones", "Notas"}
	for i := range want {
		if i >= len(names) || names[i] != want[i] {
			t.Fatalf("field order = %v, want %v", names, want)
		}
	}
	if !f.Sections[0].Fields[0].Options[0].RequiresPercentage {
		t.Fatal("option flags not preserved")
	}

	if err := m.DeleteSection(ctx, "t1", first.ID); err != nil {
		t.Fatalf("DeleteSection() error = %v", err)
	}
	var count int64
	m.db.Model(&models.Field{}).Where("section_id = ?", first.ID).Count(&count)
	if count != 0 {
		t.Fatalf("fields left after section delete: %d", count)
	}
}

func TestAddFieldRejectsInvalidDefinition(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newTestDB(t), nil)

	tpl, _ := m.Create(ctx, "t1", &CreateTemplateRequest{Name: "Cierre"})
	section, err := m.AddSection(ctx, "t1", tpl.ID, &SectionRequest{Name: "General"})
	if err != nil {
		t.Fatalf("AddSection() error = %v", err)
	}

	tests := []struct {
		name string
		req  FieldRequest
	}{
		{"unknown type", FieldRequest{Name: "Mapa", Type: "map"}},
		{"select without options", FieldRequest{Name: "Causa", Type: "select"}},
		{"duplicate options", FieldRequest{Name: "Causa", Type: "multiselect", Options: []form.Option{{Value: "a"}, {Value: "a"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.AddField(ctx, "t1", section.ID, &tt.req)
			var verrs form.ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("AddField() error = %v, want validation errors", err)
			}
		})
	}

	if _, err := m.AddField(ctx, "t1", "missing", &FieldRequest{Name: "X", Type: "text"}); !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("AddField(missing section) error = %v, want ErrNotFound", err)
	}
}

func TestUpdateField(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newTestDB(t), nil)

	tpl, _ := m.Create(ctx, "t1", &CreateTemplateRequest{Name: "Cierre"})
	section, _ := m.AddSection(ctx, "t1", tpl.ID, &SectionRequest{Name: "General"})
	field, err := m.AddField(ctx, "t1", section.ID, &FieldRequest{Name: "Área", Type: "number", Unit: "ha"})
	if err != nil {
		t.Fatalf("AddField() error = %v", err)
	}

	updated, err := m.UpdateField(ctx, "t1", field.ID, &FieldRequest{Name: "Área afectada", Type: "number", Unit: "ha", Required: true})
	if err != nil {
		t.Fatalf("UpdateField() error = %v", err)
	}
	if updated.Name != "Área afectada" || !updated.Required || updated.SectionID != section.ID {
		t.Fatalf("UpdateField() = %+v", updated)
	}

	if err := m.DeleteField(ctx, "t1", field.ID); err != nil {
		t.Fatalf("DeleteField() error = %v", err)
	}
	if err := m.DeleteField(ctx, "t1", field.ID); !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("DeleteField(again) error = %v, want ErrNotFound", err)
	}
}
