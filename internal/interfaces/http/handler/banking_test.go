package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appbanking "github.com/fintrack/backend/internal/application/banking"
	"github.com/fintrack/backend/internal/domain/banking"
	"github.com/fintrack/backend/internal/infrastructure/providers"
	"github.com/fintrack/backend/internal/interfaces/http/dto"
	"github.com/fintrack/backend/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

// ---------------------------------------------------------------------------
// In-memory test doubles
// ---------------------------------------------------------------------------

type memConnRepo struct {
	mu    sync.Mutex
	conns map[uuid.UUID]*banking.BankingConnection
}

func newMemConnRepo() *memConnRepo {
	return &memConnRepo{conns: make(map[uuid.UUID]*banking.BankingConnection)}
}

func (r *memConnRepo) Save(_ context.Context, conn *banking.BankingConnection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[conn.ID] = conn
	return nil
}

func (r *memConnRepo) FindByID(_ context.Context, id uuid.UUID) (*banking.BankingConnection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[id]
	if !ok {
		return nil, banking.ErrConnectionNotFound
	}
	return conn, nil
}

func (r *memConnRepo) FindByExternalID(_ context.Context, provider banking.ProviderCode, externalID string) (*banking.BankingConnection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, conn := range r.conns {
		if conn.Provider == provider && conn.ExternalConnectionID != nil && *conn.ExternalConnectionID == externalID {
			return conn, nil
		}
	}
	return nil, banking.ErrConnectionNotFound
}

func (r *memConnRepo) FindByOwner(_ context.Context, owner banking.Owner, _ banking.ConnectionFilter) ([]*banking.BankingConnection, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*banking.BankingConnection
	for _, conn := range r.conns {
		if conn.Owner.Equals(owner) {
			out = append(out, conn)
		}
	}
	return out, int64(len(out)), nil
}

func (r *memConnRepo) FindPendingBefore(context.Context, time.Time, int) ([]*banking.BankingConnection, error) {
	return nil, nil
}

func (r *memConnRepo) FindConsentLapsed(context.Context, time.Time, int) ([]*banking.BankingConnection, error) {
	return nil, nil
}

func (r *memConnRepo) FindSyncDue(context.Context, time.Time, int) ([]*banking.BankingConnection, error) {
	return nil, nil
}

type memLinkedRepo struct {
	accounts map[uuid.UUID][]*banking.LinkedAccount
	deleted  []uuid.UUID
}

func newMemLinkedRepo() *memLinkedRepo {
	return &memLinkedRepo{accounts: make(map[uuid.UUID][]*banking.LinkedAccount)}
}

func (r *memLinkedRepo) Save(_ context.Context, a *banking.LinkedAccount) error {
	r.accounts[a.ConnectionID] = append(r.accounts[a.ConnectionID], a)
	return nil
}

func (r *memLinkedRepo) SaveBatch(ctx context.Context, accounts []*banking.LinkedAccount) error {
	for _, a := range accounts {
		if err := r.Save(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func (r *memLinkedRepo) FindByID(context.Context, uuid.UUID) (*banking.LinkedAccount, error) {
	return nil, banking.ErrConnectionNotFound
}

func (r *memLinkedRepo) FindByConnectionID(_ context.Context, connectionID uuid.UUID) ([]*banking.LinkedAccount, error) {
	return r.accounts[connectionID], nil
}

func (r *memLinkedRepo) DeleteByConnectionID(_ context.Context, connectionID uuid.UUID) error {
	delete(r.accounts, connectionID)
	r.deleted = append(r.deleted, connectionID)
	return nil
}

type memSyncLogRepo struct {
	logs []*banking.SyncLog
}

func (r *memSyncLogRepo) Create(_ context.Context, l *banking.SyncLog) error {
	r.logs = append(r.logs, l)
	return nil
}

func (r *memSyncLogRepo) Update(context.Context, *banking.SyncLog) error { return nil }

func (r *memSyncLogRepo) FindByID(context.Context, uuid.UUID) (*banking.SyncLog, error) {
	return nil, banking.ErrConnectionNotFound
}

func (r *memSyncLogRepo) FindByConnectionID(_ context.Context, connectionID uuid.UUID, _, _ int) ([]*banking.SyncLog, int64, error) {
	var out []*banking.SyncLog
	for _, l := range r.logs {
		if l.ConnectionID == connectionID {
			out = append(out, l)
		}
	}
	return out, int64(len(out)), nil
}

func (r *memSyncLogRepo) FindLatestByConnectionID(context.Context, uuid.UUID) (*banking.SyncLog, error) {
	return nil, banking.ErrConnectionNotFound
}

// heldLock always reports a sync in progress
type heldLock struct{}

func (heldLock) Acquire(context.Context, uuid.UUID, time.Duration) (banking.ReleaseFunc, error) {
	return nil, banking.ErrSyncAlreadyInProgress
}

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

type bankingTestEnv struct {
	handler  *BankingHandler
	connRepo *memConnRepo
	linked   *memLinkedRepo
	owner    banking.Owner
	registry *providers.Registry
}

// newBankingTestEnv wires a handler against in-memory repositories and the
// sandbox provider adapter
func newBankingTestEnv(t *testing.T) *bankingTestEnv {
	t.Helper()

	connRepo := newMemConnRepo()
	linked := newMemLinkedRepo()
	syncLogs := &memSyncLogRepo{}

	registry := providers.NewRegistry()
	registry.Register(providers.NewSandboxAdapter(banking.ProviderCodeSaltEdge))

	linkService := appbanking.NewLinkService(connRepo, linked, syncLogs, registry, zap.NewNop())
	orchestrator := appbanking.NewSyncOrchestrator(
		connRepo, linked, syncLogs, nil, registry, heldLock{}, nil,
		appbanking.DefaultSyncConfig(), zap.NewNop())

	return &bankingTestEnv{
		handler:  NewBankingHandler(linkService, orchestrator, registry),
		connRepo: connRepo,
		linked:   linked,
		owner:    banking.UserOwner(uuid.New()),
		registry: registry,
	}
}

// router builds a gin engine with the owner's claims pre-set, bypassing JWT
func (env *bankingTestEnv) router() *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.JWTUserIDKey, env.owner.UserID.String())
		c.Next()
	})
	api := r.Group("/api/v1/banking")
	{
		api.GET("/providers", env.handler.ListProviders)
		api.POST("/connections", env.handler.InitiateLink)
		api.GET("/connections", env.handler.ListConnections)
		api.GET("/connections/:id", env.handler.GetConnection)
		api.DELETE("/connections/:id", env.handler.RevokeConnection)
		api.POST("/connections/:id/callback", env.handler.CompleteLink)
		api.GET("/connections/:id/accounts", env.handler.ListLinkedAccounts)
		api.POST("/connections/:id/sync", env.handler.TriggerSync)
		api.GET("/connections/:id/sync-logs", env.handler.ListSyncLogs)
	}
	return r
}

func (env *bankingTestEnv) seedActiveConnection(t *testing.T) *banking.BankingConnection {
	t.Helper()
	conn, err := banking.NewBankingConnection(env.owner, banking.ProviderCodeSaltEdge)
	require.NoError(t, err)
	require.NoError(t, conn.AttachExternalID("ext-"+conn.ID.String(), "https://sandbox/consent"))
	require.NoError(t, conn.Authorize(nil))
	require.NoError(t, conn.Activate())
	require.NoError(t, env.connRepo.Save(context.Background(), conn))
	return conn
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestBankingHandler_ListProviders(t *testing.T) {
	env := newBankingTestEnv(t)
	w := doJSON(t, env.router(), http.MethodGet, "/api/v1/banking/providers", nil)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)

	list, ok := resp.Data.([]any)
	require.True(t, ok)
	require.Len(t, list, 1)
	entry := list[0].(map[string]any)
	assert.Equal(t, "SALTEDGE", entry["code"])
	assert.Equal(t, "Salt Edge", entry["name"])
}

func TestBankingHandler_InitiateLink(t *testing.T) {
	env := newBankingTestEnv(t)
	w := doJSON(t, env.router(), http.MethodPost, "/api/v1/banking/connections",
		appbanking.InitiateLinkRequest{Provider: "SALTEDGE", ReturnURL: "https://app/return"})

	require.Equal(t, http.StatusCreated, w.Code)
	resp := decodeResponse(t, w)
	require.True(t, resp.Success)

	data := resp.Data.(map[string]any)
	assert.Equal(t, "PENDING", data["status"])
	assert.NotEmpty(t, data["redirect_url"])
	assert.Equal(t, "SALTEDGE", data["provider"])
}

func TestBankingHandler_InitiateLink_InvalidProvider(t *testing.T) {
	env := newBankingTestEnv(t)
	w := doJSON(t, env.router(), http.MethodPost, "/api/v1/banking/connections",
		appbanking.InitiateLinkRequest{Provider: "MONZO"})

	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, dto.ErrCodeInvalidProvider, resp.Error.Code)
}

func TestBankingHandler_InitiateLink_MissingBody(t *testing.T) {
	env := newBankingTestEnv(t)
	w := doJSON(t, env.router(), http.MethodPost, "/api/v1/banking/connections", map[string]string{})

	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
	require.Len(t, resp.Error.Details, 1)
	assert.Equal(t, "provider", resp.Error.Details[0].Field)
}

func TestBankingHandler_CompleteLink(t *testing.T) {
	env := newBankingTestEnv(t)
	r := env.router()

	w := doJSON(t, r, http.MethodPost, "/api/v1/banking/connections",
		appbanking.InitiateLinkRequest{Provider: "SALTEDGE"})
	require.Equal(t, http.StatusCreated, w.Code)
	created := decodeResponse(t, w).Data.(map[string]any)
	id := created["id"].(string)

	w = doJSON(t, r, http.MethodPost, "/api/v1/banking/connections/"+id+"/callback",
		appbanking.CompleteLinkRequest{Params: map[string]string{"status": "active"}})

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeResponse(t, w).Data.(map[string]any)
	assert.Equal(t, "AUTHORIZED", data["status"])
}

func TestBankingHandler_GetConnection_NotFound(t *testing.T) {
	env := newBankingTestEnv(t)
	w := doJSON(t, env.router(), http.MethodGet, "/api/v1/banking/connections/"+uuid.NewString(), nil)

	require.Equal(t, http.StatusNotFound, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, dto.ErrCodeNotFound, resp.Error.Code)
}

func TestBankingHandler_GetConnection_BadID(t *testing.T) {
	env := newBankingTestEnv(t)
	w := doJSON(t, env.router(), http.MethodGet, "/api/v1/banking/connections/not-a-uuid", nil)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBankingHandler_GetConnection_OtherOwnerHidden(t *testing.T) {
	env := newBankingTestEnv(t)

	other, err := banking.NewBankingConnection(banking.UserOwner(uuid.New()), banking.ProviderCodeSaltEdge)
	require.NoError(t, err)
	require.NoError(t, env.connRepo.Save(context.Background(), other))

	w := doJSON(t, env.router(), http.MethodGet, "/api/v1/banking/connections/"+other.ID.String(), nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestBankingHandler_ListConnections(t *testing.T) {
	env := newBankingTestEnv(t)
	env.seedActiveConnection(t)

	w := doJSON(t, env.router(), http.MethodGet, "/api/v1/banking/connections?page=1&page_size=10", nil)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, int64(1), resp.Meta.Total)
	assert.Equal(t, 1, resp.Meta.Page)
	assert.Equal(t, 10, resp.Meta.PageSize)
}

func TestBankingHandler_ListConnections_InvalidProviderFilter(t *testing.T) {
	env := newBankingTestEnv(t)
	w := doJSON(t, env.router(), http.MethodGet, "/api/v1/banking/connections?provider=MONZO", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBankingHandler_TriggerSync_Conflict(t *testing.T) {
	env := newBankingTestEnv(t)
	conn := env.seedActiveConnection(t)

	w := doJSON(t, env.router(), http.MethodPost, "/api/v1/banking/connections/"+conn.ID.String()+"/sync", nil)

	require.Equal(t, http.StatusConflict, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, dto.ErrCodeSyncInProgress, resp.Error.Code)
}

func TestBankingHandler_TriggerSync_NotSyncable(t *testing.T) {
	env := newBankingTestEnv(t)

	conn, err := banking.NewBankingConnection(env.owner, banking.ProviderCodeSaltEdge)
	require.NoError(t, err)
	require.NoError(t, env.connRepo.Save(context.Background(), conn))

	w := doJSON(t, env.router(), http.MethodPost, "/api/v1/banking/connections/"+conn.ID.String()+"/sync", nil)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, dto.ErrCodeInvalidState, resp.Error.Code)
}

func TestBankingHandler_RevokeConnection(t *testing.T) {
	env := newBankingTestEnv(t)
	conn := env.seedActiveConnection(t)

	w := doJSON(t, env.router(), http.MethodDelete, "/api/v1/banking/connections/"+conn.ID.String(), nil)

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeResponse(t, w).Data.(map[string]any)
	assert.Equal(t, "REVOKED", data["status"])
	assert.Contains(t, env.linked.deleted, conn.ID)
}

func TestBankingHandler_ListSyncLogs_Empty(t *testing.T) {
	env := newBankingTestEnv(t)
	conn := env.seedActiveConnection(t)

	w := doJSON(t, env.router(), http.MethodGet, "/api/v1/banking/connections/"+conn.ID.String()+"/sync-logs", nil)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, int64(0), resp.Meta.Total)
}
