package db

import (
	"context"
	"testing"

	"github.com/yourorg/fire-closure/pkg/db/models"
	"github.com/yourorg/fire-closure/pkg/form"
)

func TestSQLiteRoundTrip(t *testing.T) {
	conn, err := NewConnection(&Config{Driver: DriverSQLite, Path: ":memory:", LogLevel: "silent"}, nil)
	if err != nil {
		t.Fatalf("NewConnection() error = %v", err)
	}
	defer conn.Close()
	if err := conn.AutoMigrate(); err != nil {
		t.Fatalf("AutoMigrate() error = %v", err)
	}

	field := models.Field{
		ID: "f1", SectionID: "s1", TenantID: "t1", Name: "Apoyo", Type: "select",
		Options: models.OptionList{{Value: "aereo", Label: "Aéreo", RequiresPercentage: true}},
	}
	if err := conn.DB().Create(&field).Error; err != nil {
		t.Fatalf("create field: %v", err)
	}

	var got models.Field
	if err := conn.DB().Scopes(TenantScope("t1")).First(&got, "id = ?", "f1").Error; err != nil {
		t.Fatalf("load field: %v", err)
	}
	if len(got.Options) != 1 || got.Options[0] != (form.Option{Value: "aereo", Label: "Aéreo", RequiresPercentage: true}) {
		t.Fatalf("options not round-tripped: %+v", got.Options)
	}

	err = conn.DB().Scopes(TenantScope("other")).First(&models.Field{}, "id = ?", "f1").Error
	if err = NotFound(err, "field", "f1"); err == nil {
		t.Fatal("expected tenant scope to hide the field")
	}
}

func TestPingAndStats(t *testing.T) {
	conn, err := NewConnection(&Config{Driver: DriverSQLite, Path: ":memory:", LogLevel: "silent"}, nil)
	if err != nil {
		t.Fatalf("NewConnection() error = %v", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	stats, err := conn.GetStats()
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if stats.OpenConnections < 1 {
		t.Fatalf("OpenConnections = %d, want at least 1", stats.OpenConnections)
	}

	if err := conn.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := conn.Ping(context.Background()); err == nil {
		t.Fatal("Ping() on a closed connection succeeded")
	}
}
