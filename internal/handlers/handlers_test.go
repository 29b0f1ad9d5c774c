package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/vmaximov/sellhub/internal/auth"
	"github.com/vmaximov/sellhub/internal/listing"
	"github.com/vmaximov/sellhub/internal/models"
	"github.com/vmaximov/sellhub/internal/profile"
	"github.com/vmaximov/sellhub/internal/token"
)

type memBlobs struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (m *memBlobs) Save(ctx context.Context, name string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = data
	return nil
}

func (m *memBlobs) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[name]; !ok {
		return errors.New("no such blob")
	}
	delete(m.files, name)
	return nil
}

func (m *memBlobs) URL(name string) string { return "/uploads/" + name }

type testEnv struct {
	T       *testing.T
	E       *echo.Echo
	DB      *gorm.DB
	Manager *auth.Manager
	A       *AuthHandler
	L       *ListingHandler
	P       *ProfileHandler
	Blobs   *memBlobs
}

func newTestEnv(t *testing.T) *testEnv {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to connect to in-memory db: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Listing{}); err != nil {
		t.Fatalf("failed to migrate tables: %v", err)
	}

	manager := &auth.Manager{DB: db, Tokens: token.NewIssuer([]byte("test-secret"))}
	blobs := &memBlobs{files: map[string][]byte{}}

	return &testEnv{
		T:       t,
		E:       echo.New(),
		DB:      db,
		Manager: manager,
		A:       &AuthHandler{Auth: manager},
		L:       &ListingHandler{Store: &listing.Store{DB: db, Blobs: blobs}},
		P:       &ProfileHandler{Profiles: &profile.Service{DB: db}},
		Blobs:   blobs,
	}
}

func (env *testEnv) doJSONRequest(method, target string, payload interface{}) (*httptest.ResponseRecorder, echo.Context) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(env.T, err)
		body = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := env.E.NewContext(req, rec)
	return rec, c
}

func (env *testEnv) registerUser(username, email, password string) *models.User {
	user, err := env.Manager.Register(context.Background(), username, email, password)
	require.NoError(env.T, err)
	return user
}

func TestRegisterHandler(t *testing.T) {
	env := newTestEnv(t)

	payload := map[string]string{"username": "alice", "email": "a@x.com", "password": "pw123"}
	rec, c := env.doJSONRequest(http.MethodPost, "/api/v1/register", payload)

	require.NoError(t, env.A.Register(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var user models.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	require.Equal(t, "alice", user.Username)
	require.Equal(t, "a@x.com", user.Email)
	require.NotZero(t, user.ID)
	require.Empty(t, user.PasswordHash, "hash must never serialize")
}

func TestRegisterHandlerConflict(t *testing.T) {
	env := newTestEnv(t)
	env.registerUser("alice", "a@x.com", "pw123")

	payload := map[string]string{"username": "other", "email": "a@x.com", "password": "pw456"}
	_, c := env.doJSONRequest(http.MethodPost, "/api/v1/register", payload)

	err := env.A.Register(c)
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	require.Equal(t, http.StatusConflict, he.Code)
}

func TestRegisterHandlerMissingFields(t *testing.T) {
	env := newTestEnv(t)

	_, c := env.doJSONRequest(http.MethodPost, "/api/v1/register", map[string]string{"username": "alice"})
	err := env.A.Register(c)
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	require.Equal(t, http.StatusBadRequest, he.Code)
}

func TestLoginHandler(t *testing.T) {
	env := newTestEnv(t)
	user := env.registerUser("alice", "a@x.com", "pw123")

	rec, c := env.doJSONRequest(http.MethodPost, "/api/v1/login", map[string]string{"email": "a@x.com", "password": "pw123"})
	require.NoError(t, env.A.Login(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	require.Equal(t, user.ID, resp.User.ID)

	subject, err := env.Manager.Tokens.Verify(resp.Token)
	require.NoError(t, err)
	require.Equal(t, user.ID, subject)
}

func TestLoginHandlerRejectsUniformly(t *testing.T) {
	env := newTestEnv(t)
	env.registerUser("alice", "a@x.com", "pw123")

	// unknown account and wrong password must be indistinguishable
	for _, payload := range []map[string]string{
		{"email": "nobody@x.com", "password": "pw123"},
		{"email": "a@x.com", "password": "wrong"},
	} {
		_, c := env.doJSONRequest(http.MethodPost, "/api/v1/login", payload)
		err := env.A.Login(c)
		var he *echo.HTTPError
		require.ErrorAs(t, err, &he)
		require.Equal(t, http.StatusUnauthorized, he.Code)
		require.Equal(t, "invalid credentials", he.Message)
	}
}

func multipartListingBody(t *testing.T, fields map[string]string, files []string) (*bytes.Buffer, string) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for _, name := range files {
		fw, err := w.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte("image-" + name))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func (env *testEnv) doMultipartRequest(method, target string, fields map[string]string, files []string, userID uint) (*httptest.ResponseRecorder, echo.Context) {
	body, contentType := multipartListingBody(env.T, fields, files)
	req := httptest.NewRequest(method, target, body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	c := env.E.NewContext(req, rec)
	c.Set("userID", userID)
	return rec, c
}

func sampleListingForm() map[string]string {
	return map[string]string{
		"title":       "bike",
		"description": "barely used",
		"category":    "sport",
		"new":         "false",
		"price":       "120",
		"negociable":  "true",
		"phone":       "555-0101",
	}
}

func TestCreateListingHandler(t *testing.T) {
	env := newTestEnv(t)
	owner := env.registerUser("alice", "a@x.com", "pw123")

	rec, c := env.doMultipartRequest(http.MethodPost, "/api/v1/listings", sampleListingForm(), []string{"a.jpg", "b.jpg"}, owner.ID)
	require.NoError(t, env.L.CreateListing(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var l models.Listing
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &l))
	require.Equal(t, "bike", l.Title)
	require.Equal(t, owner.ID, l.OwnerID)
	require.Len(t, l.Images, 2)
	for _, name := range l.Images {
		_, ok := env.Blobs.files[name]
		require.True(t, ok, "image %s must resolve", name)
	}
}

func TestCreateListingTooManyImages(t *testing.T) {
	env := newTestEnv(t)
	owner := env.registerUser("alice", "a@x.com", "pw123")

	_, c := env.doMultipartRequest(http.MethodPost, "/api/v1/listings",
		sampleListingForm(), []string{"1.jpg", "2.jpg", "3.jpg", "4.jpg", "5.jpg"}, owner.ID)

	err := env.L.CreateListing(c)
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	require.Equal(t, http.StatusBadRequest, he.Code)
}

func TestGetListingIncrementsViews(t *testing.T) {
	env := newTestEnv(t)
	owner := env.registerUser("alice", "a@x.com", "pw123")

	recCreate, cCreate := env.doMultipartRequest(http.MethodPost, "/api/v1/listings", sampleListingForm(), nil, owner.ID)
	require.NoError(t, env.L.CreateListing(cCreate))
	var created models.Listing
	require.NoError(t, json.Unmarshal(recCreate.Body.Bytes(), &created))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := env.E.NewContext(req, rec)
	c.SetPath("/api/v1/listings/:id")
	c.SetParamNames("id")
	c.SetParamValues(fmt.Sprint(created.ID))

	require.NoError(t, env.L.GetListing(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.Listing
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, uint(1), got.Views)
}

func TestPatchListingByNonOwner(t *testing.T) {
	env := newTestEnv(t)
	owner := env.registerUser("alice", "a@x.com", "pw123")
	intruder := env.registerUser("mallory", "m@x.com", "pw123")

	recCreate, cCreate := env.doMultipartRequest(http.MethodPost, "/api/v1/listings", sampleListingForm(), []string{"a.jpg"}, owner.ID)
	require.NoError(t, env.L.CreateListing(cCreate))
	var created models.Listing
	require.NoError(t, json.Unmarshal(recCreate.Body.Bytes(), &created))

	_, c := env.doMultipartRequest(http.MethodPatch, "/api/v1/listings/:id", map[string]string{"title": "hacked"}, nil, intruder.ID)
	c.SetParamNames("id")
	c.SetParamValues(fmt.Sprint(created.ID))

	err := env.L.PatchListing(c)
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	require.Equal(t, http.StatusUnauthorized, he.Code)

	var l models.Listing
	require.NoError(t, env.DB.First(&l, created.ID).Error)
	require.Equal(t, "bike", l.Title)
}

func TestDeleteListingHandler(t *testing.T) {
	env := newTestEnv(t)
	owner := env.registerUser("alice", "a@x.com", "pw123")

	recCreate, cCreate := env.doMultipartRequest(http.MethodPost, "/api/v1/listings", sampleListingForm(), []string{"a.jpg"}, owner.ID)
	require.NoError(t, env.L.CreateListing(cCreate))
	var created models.Listing
	require.NoError(t, json.Unmarshal(recCreate.Body.Bytes(), &created))

	req := httptest.NewRequest(http.MethodDelete, "/", nil)
	rec := httptest.NewRecorder()
	c := env.E.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(fmt.Sprint(created.ID))
	c.Set("userID", owner.ID)

	require.NoError(t, env.L.DeleteListing(c))
	require.Equal(t, http.StatusNoContent, rec.Code)

	require.Empty(t, env.Blobs.files)

	var count int64
	require.NoError(t, env.DB.Model(&models.Listing{}).Count(&count).Error)
	require.Equal(t, int64(0), count)
}

func TestProfileHandlers(t *testing.T) {
	env := newTestEnv(t)
	user := env.registerUser("alice", "a@x.com", "pw123")

	_, cCreate := env.doMultipartRequest(http.MethodPost, "/api/v1/listings", sampleListingForm(), nil, user.ID)
	require.NoError(t, env.L.CreateListing(cCreate))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/profile", nil)
	rec := httptest.NewRecorder()
	c := env.E.NewContext(req, rec)
	c.Set("userID", user.ID)

	require.NoError(t, env.P.GetProfile(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var p profile.Profile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	require.Equal(t, user.ID, p.User.ID)
	require.Equal(t, int64(1), p.ListingCount)

	recUpd, cUpd := env.doJSONRequest(http.MethodPatch, "/api/v1/profile", map[string]string{"username": "alice2"})
	cUpd.Set("userID", user.ID)
	require.NoError(t, env.P.UpdateProfile(cUpd))
	require.Equal(t, http.StatusOK, recUpd.Code)

	var updated models.User
	require.NoError(t, env.DB.First(&updated, user.ID).Error)
	require.Equal(t, "alice2", updated.Username)
}
