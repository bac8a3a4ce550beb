package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourorg/fire-closure/pkg/auth"
	"github.com/yourorg/fire-closure/pkg/backend"
	"github.com/yourorg/fire-closure/pkg/catalog"
	"github.com/yourorg/fire-closure/pkg/closure"
	"github.com/yourorg/fire-closure/pkg/db"
	"github.com/yourorg/fire-closure/pkg/editor"
	"github.com/yourorg/fire-closure/pkg/formfill"
	"github.com/yourorg/fire-closure/pkg/lifecycle"
	"github.com/yourorg/fire-closure/pkg/record"
	"github.com/yourorg/fire-closure/pkg/template"
)

type testEnv struct {
	server    *Server
	jwt       *auth.JWTManager
	catalogs  *catalog.Manager
	templates *template.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := db.NewConnection(&db.Config{Driver: db.DriverSQLite, Path: ":memory:", LogLevel: "silent"}, nil)
	if err != nil {
		t.Fatalf("NewConnection() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := conn.AutoMigrate(); err != nil {
		t.Fatalf("AutoMigrate() error = %v", err)
	}

	policy, err := auth.NewPolicy(nil)
	if err != nil {
		t.Fatalf("NewPolicy() error = %v", err)
	}
	jwtManager := auth.NewJWTManager("test-secret-0123456789", "fire-closure", time.Hour)

	middleware := auth.NewMiddleware(jwtManager, policy, nil)
	templates := template.NewManager(conn.DB(), nil)
	catalogs := catalog.NewManager(conn.DB(), nil)
	server := NewServer(&ServerConfig{Debug: true}, &Dependencies{
		DB:              conn,
		Auth:            middleware,
		Metrics:         NewMetrics(),
		TemplateManager: templates,
		RecordManager:   record.NewManager(conn.DB(), middleware.Policy(), nil),
		CatalogManager:  catalogs,
		FormFillManager: formfill.NewManager(conn.DB(), templates, middleware.Policy(), nil),
	})

	return &testEnv{server: server, jwt: jwtManager, catalogs: catalogs, templates: templates}
}

func (e *testEnv) token(t *testing.T, userID string, isAdmin bool) string {
	t.Helper()
	token, err := e.jwt.GenerateUserToken("t1", userID, isAdmin, nil, 0)
	if err != nil {
		t.Fatalf("GenerateUserToken() error = %v", err)
	}
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.server.Router().ServeHTTP(w, req)
	return w
}

func TestHealthAndAuth(t *testing.T) {
	env := newTestEnv(t)

	if w := env.do(t, http.MethodGet, "/health", "", nil); w.Code != http.StatusOK {
		t.Fatalf("/health = %d", w.Code)
	}
	w := env.do(t, http.MethodGet, "/ready", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("/ready = %d", w.Code)
	}
	var ready struct {
		Ready    bool      `json:"ready"`
		Database *db.Stats `json:"database"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &ready); err != nil {
		t.Fatalf("decode /ready: %v", err)
	}
	if !ready.Ready || ready.Database == nil || ready.Database.OpenConnections < 1 {
		t.Fatalf("/ready = %s", w.Body.String())
	}
	if w := env.do(t, http.MethodGet, "/api/v1/cierre/inc-1", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated = %d, want 401", w.Code)
	}

	w = env.do(t, http.MethodGet, "/api/v1/auth/me", env.token(t, "u1", false), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("/auth/me = %d", w.Code)
	}
	var me auth.User
	if err := json.Unmarshal(w.Body.Bytes(), &me); err != nil {
		t.Fatalf("decode /auth/me: %v", err)
	}
	if me.ID != "u1" || me.TenantID != "t1" || me.IsAdmin {
		t.Fatalf("/auth/me = %+v", me)
	}
}

func TestCierreEndpoints(t *testing.T) {
	env := newTestEnv(t)
	responder := env.token(t, "u1", false)
	admin := env.token(t, "a1", true)

	if w := env.do(t, http.MethodGet, "/api/v1/cierre/inc-1", responder, nil); w.Code != http.StatusNotFound {
		t.Fatalf("GET missing = %d, want 404", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/api/v1/cierre/init", responder, gin.H{"incendio_uuid": "inc-1"}); w.Code != http.StatusOK {
		t.Fatalf("init = %d: %s", w.Code, w.Body)
	}

	over := gin.H{"tecnicas": []gin.H{{"tecnica": "directo", "pct": 80}, {"tecnica": "indirecto", "pct": 30}}}
	w := env.do(t, http.MethodPatch, "/api/v1/cierre/inc-1", responder, over)
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), closure.FieldTecnicas) {
		t.Fatalf("PATCH over 100 = %d: %s", w.Code, w.Body)
	}

	w = env.do(t, http.MethodPatch, "/api/v1/cierre/inc-1", responder, gin.H{
		"superficie": gin.H{"dentro_ap_ha": 1.5, "fuera_ap_ha": 2},
	})
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"area_total_ha":3.5`) {
		t.Fatalf("PATCH = %d: %s", w.Code, w.Body)
	}

	if w := env.do(t, http.MethodPost, "/api/v1/cierre/inc-1/finalizar", responder, nil); w.Code != http.StatusOK {
		t.Fatalf("finalizar = %d: %s", w.Code, w.Body)
	}
	if w := env.do(t, http.MethodPatch, "/api/v1/cierre/inc-1", responder, gin.H{"nota": "x"}); w.Code != http.StatusForbidden {
		t.Fatalf("PATCH extinguished by responder = %d, want 403", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/api/v1/cierre/inc-1/reabrir", responder, nil); w.Code != http.StatusForbidden {
		t.Fatalf("reabrir by responder = %d, want 403", w.Code)
	}

	w = env.do(t, http.MethodPost, "/api/v1/cierre/inc-1/reabrir", admin, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reabrir by admin = %d: %s", w.Code, w.Body)
	}
	rec, err := closure.DecodeRecord(w.Body.Bytes())
	if err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if st := lifecycle.Resolve(rec.EstadoCierre, rec.SecuenciaControl); st != lifecycle.Pendiente {
		t.Fatalf("state after reopen = %s", st)
	}

	metrics := env.do(t, http.MethodGet, "/metrics", "", nil)
	if !strings.Contains(metrics.Body.String(), `closure_lifecycle_transitions_total{transition="reabrir"} 1`) {
		t.Fatalf("metrics missing reopen transition:\n%s", metrics.Body)
	}
}

func TestCatalogAndTemplatePermissions(t *testing.T) {
	env := newTestEnv(t)
	responder := env.token(t, "u1", false)
	admin := env.token(t, "a1", true)

	if w := env.do(t, http.MethodPost, "/api/v1/catalogos/causas", responder, gin.H{"nombre": "Rayo"}); w.Code != http.StatusForbidden {
		t.Fatalf("create by responder = %d, want 403", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/api/v1/catalogos/causas", admin, gin.H{"nombre": "Rayo"}); w.Code != http.StatusCreated {
		t.Fatalf("create by admin = %d: %s", w.Code, w.Body)
	}
	if w := env.do(t, http.MethodGet, "/api/v1/catalogos/colores", responder, nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown catalog = %d, want 404", w.Code)
	}

	w := env.do(t, http.MethodGet, "/api/v1/catalogos/causas?page=1&pageSize=10", responder, nil)
	var page closure.CatalogPage
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if page.Total != 1 || page.PageSize != 10 || page.Items[0].Nombre != "Rayo" {
		t.Fatalf("page = %+v", page)
	}

	if w := env.do(t, http.MethodPost, "/api/v1/plantillas", responder, gin.H{"name": "Cierre"}); w.Code != http.StatusForbidden {
		t.Fatalf("template by responder = %d, want 403", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/api/v1/plantillas", admin, gin.H{}); w.Code != http.StatusBadRequest {
		t.Fatalf("template without name = %d, want 400", w.Code)
	}
}

func TestTemplateAuthoringAndForm(t *testing.T) {
	env := newTestEnv(t)
	responder := env.token(t, "u1", false)
	admin := env.token(t, "a1", true)

	var tpl struct{ ID string }
	w := env.do(t, http.MethodPost, "/api/v1/plantillas", admin, gin.H{"name": "Cierre v2"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create template = %d: %s", w.Code, w.Body)
	}
	json.Unmarshal(w.Body.Bytes(), &tpl)

	var section struct{ ID string }
	w = env.do(t, http.MethodPost, "/api/v1/plantillas/"+tpl.ID+"/secciones", admin, gin.H{"name": "Recursos"})
	if w.Code != http.StatusCreated {
		t.Fatalf("add section = %d: %s", w.Code, w.Body)
	}
	json.Unmarshal(w.Body.Bytes(), &section)

	if w := env.do(t, http.MethodPost, "/api/v1/secciones/"+section.ID+"/campos", admin, gin.H{
		"name": "Tipo de apoyo", "type": "select",
	}); w.Code != http.StatusBadRequest {
		t.Fatalf("select without options = %d, want 400", w.Code)
	}

	var field struct{ ID string }
	w = env.do(t, http.MethodPost, "/api/v1/secciones/"+section.ID+"/campos", admin, gin.H{
		"name": "Tipo de apoyo", "type": "select",
		"options": []gin.H{
			{"value": "terrestre", "label": "Terrestre"},
			{"value": "aereo", "label": "Aéreo", "requiresPercentage": true, "percentageLabel": "% cobertura"},
		},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("add field = %d: %s", w.Code, w.Body)
	}
	json.Unmarshal(w.Body.Bytes(), &field)

	path := "/api/v1/incendios/inc-1/formulario-cierre"
	if w := env.do(t, http.MethodGet, path, responder, nil); w.Code != http.StatusNotFound {
		t.Fatalf("form without active template = %d, want 404", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/api/v1/plantillas/"+tpl.ID+"/activar", admin, nil); w.Code != http.StatusOK {
		t.Fatalf("activate = %d: %s", w.Code, w.Body)
	}
	if w := env.do(t, http.MethodDelete, "/api/v1/plantillas/"+tpl.ID, admin, nil); w.Code != http.StatusConflict {
		t.Fatalf("delete active = %d, want 409", w.Code)
	}

	w = env.do(t, http.MethodPost, path+"/respuestas", responder, gin.H{"respuestas": []gin.H{
		{"field_id": field.ID, "type": "select", "value": gin.H{"value": "aereo", "percentage": 75}},
	}})
	if w.Code != http.StatusOK {
		t.Fatalf("save = %d: %s", w.Code, w.Body)
	}

	w = env.do(t, http.MethodGet, path, responder, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"respuesta":{"value":"aereo","percentage":75}`) {
		t.Fatalf("form = %d: %s", w.Code, w.Body)
	}

	if w := env.do(t, http.MethodPost, "/api/v1/incendios/inc-1/finalizar", responder, nil); w.Code != http.StatusOK {
		t.Fatalf("finalizar incendio = %d: %s", w.Code, w.Body)
	}
	if w := env.do(t, http.MethodPost, "/api/v1/incendios/inc-1/finalizar", responder, nil); w.Code != http.StatusForbidden {
		t.Fatalf("second finalizar incendio = %d, want 403", w.Code)
	}

	edit := gin.H{"respuestas": []gin.H{
		{"field_id": field.ID, "type": "select", "value": gin.H{"value": "terrestre"}},
	}}
	if w := env.do(t, http.MethodPost, path+"/respuestas", responder, edit); w.Code != http.StatusForbidden {
		t.Fatalf("save extinguished by responder = %d, want 403", w.Code)
	}
	w = env.do(t, http.MethodGet, path, responder, nil)
	if !strings.Contains(w.Body.String(), `"respuesta":{"value":"aereo","percentage":75}`) {
		t.Fatalf("rejected save changed the form: %s", w.Body)
	}
	if w := env.do(t, http.MethodPost, path+"/respuestas", admin, edit); w.Code != http.StatusOK {
		t.Fatalf("save extinguished by admin = %d: %s", w.Code, w.Body)
	}
}

// TestEditorAgainstServer drives the closure record editor through the REST
// client against a live server.
func TestEditorAgainstServer(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	if _, err := env.catalogs.Seed(ctx, "t1"); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}

	ts := httptest.NewServer(env.server.Router())
	defer ts.Close()

	token := env.token(t, "u1", false)
	client := backend.NewClient(&backend.Config{BaseURL: ts.URL, Token: token}, nil)
	session, err := auth.NewTokenSession(token)
	if err != nil {
		t.Fatalf("NewTokenSession() error = %v", err)
	}

	ed := editor.NewCierreEditor(client, session, editor.CierreEditorOptions{PageSize: 2})
	if err := ed.Open(ctx, "inc-9"); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	directo, ok := (&closure.TechniqueMapper{}).ItemFor(closure.SlugDirecto, ed.Catalogs().Tecnicas)
	if !ok {
		t.Fatal("seeded catalog has no direct technique")
	}
	if err := ed.Update(ctx, func(s *closure.FormState) { s.Tecnicas[directo.ID] = 50 }); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if _, err := ed.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	rec, err := client.GetCierre(ctx, "inc-9")
	if err != nil {
		t.Fatalf("GetCierre() error = %v", err)
	}
	if len(rec.Tecnicas) != 1 || rec.Tecnicas[0].Tecnica != closure.SlugDirecto || rec.Tecnicas[0].Pct != 50 {
		t.Fatalf("stored tecnicas = %+v", rec.Tecnicas)
	}

	if _, err := ed.Finalize(ctx); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if ed.Lifecycle() != lifecycle.Extinguido {
		t.Fatalf("lifecycle = %s, want Extinguido", ed.Lifecycle())
	}

	_, err = ed.Reopen(ctx)
	var permErr *editor.PermissionError
	if !errors.As(err, &permErr) {
		t.Fatalf("Reopen() error = %v, want PermissionError", err)
	}
}
