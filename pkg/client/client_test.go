package client_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mrshanahan/notes-sync/internal/api"
	"github.com/mrshanahan/notes-sync/pkg/auth"
	"github.com/mrshanahan/notes-sync/pkg/client"
	"github.com/mrshanahan/notes-sync/pkg/notes"
	notesdb "github.com/mrshanahan/notes-sync/pkg/notes-db"
)

const testPassword = "password123"

type testServer struct {
	URL      string
	requests atomic.Int64
}

func (s *testServer) Requests() int64 {
	return s.requests.Load()
}

func startServer(t *testing.T) *testServer {
	t.Helper()
	db, err := notesdb.Initialize(filepath.Join(t.TempDir(), "notes.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	app := api.New(api.Config{
		Store:            db,
		Authenticator:    auth.NewAuthenticator(db, []byte("client-test-secret"), auth.WithBcryptCost(bcrypt.MinCost)),
		DisableAccessLog: true,
	})
	handler := adaptor.FiberApp(app)

	ts := &testServer{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.requests.Add(1)
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(server.Close)
	ts.URL = server.URL
	return ts
}

func signedUpClient(t *testing.T, server *testServer, email string) *client.Client {
	t.Helper()
	c := client.NewClient(server.URL)
	_, err := c.SignUp(context.Background(), email, testPassword)
	require.NoError(t, err)
	return c
}

func TestSignUp_LeavesClientSignedIn(t *testing.T) {
	server := startServer(t)
	ctx := context.Background()
	c := client.NewClient(server.URL)

	assert.False(t, c.CheckSession(ctx))

	principal, err := c.SignUp(ctx, "ada@example.com", testPassword)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", principal.Email)
	assert.True(t, c.HasSession())
	assert.True(t, c.CheckSession(ctx))

	user, err := c.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, principal.ID, user.ID)
}

func TestSignUp_Errors(t *testing.T) {
	server := startServer(t)
	ctx := context.Background()
	signedUpClient(t, server, "ada@example.com")

	c := client.NewClient(server.URL)
	_, err := c.SignUp(ctx, "ada@example.com", testPassword)
	assert.ErrorIs(t, err, notes.ErrPrincipalExists)
	assert.False(t, c.HasSession())

	before := server.Requests()
	_, err = c.SignUp(ctx, "bob@example.com", "short")
	assert.ErrorIs(t, err, notes.ErrValidation)
	_, err = c.SignUp(ctx, "", testPassword)
	assert.ErrorIs(t, err, notes.ErrValidation)
	assert.Equal(t, before, server.Requests(), "weak input is rejected locally")
}

func TestSignIn(t *testing.T) {
	server := startServer(t)
	ctx := context.Background()
	signedUpClient(t, server, "ada@example.com")

	c := client.NewClient(server.URL)
	_, err := c.SignIn(ctx, "ada@example.com", "wrong-password")
	assert.ErrorIs(t, err, notes.ErrInvalidCredentials)
	assert.False(t, c.HasSession())

	_, err = c.SignIn(ctx, "nobody@example.com", testPassword)
	assert.ErrorIs(t, err, notes.ErrInvalidCredentials)

	principal, err := c.SignIn(ctx, "ada@example.com", testPassword)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", principal.Email)
	assert.True(t, c.CheckSession(ctx))
}

func TestGroceriesScenario(t *testing.T) {
	server := startServer(t)
	ctx := context.Background()
	c := signedUpClient(t, server, "ada@example.com")

	created, err := c.CreateNote(ctx, notes.NoteInput{Title: "Groceries", Content: "Milk, eggs"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	list, err := c.ListNotes(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)
	assert.Equal(t, "Groceries", list[0].Title)
	assert.Equal(t, "Milk, eggs", list[0].Content)

	updated, err := c.UpdateNote(ctx, created.ID, notes.NoteUpdate{Content: notes.StringPtr("Milk, eggs, bread")})
	require.NoError(t, err)
	assert.Equal(t, "Milk, eggs, bread", updated.Content)

	got, err := c.GetNote(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Groceries", got.Title)
	assert.Equal(t, "Milk, eggs, bread", got.Content)
	assert.True(t, got.UpdatedAt.After(created.UpdatedAt), "updated_at advances")
	assert.True(t, got.CreatedAt.Equal(created.CreatedAt))
}

func TestPartialUpdate_KeepsOtherFields(t *testing.T) {
	server := startServer(t)
	ctx := context.Background()
	c := signedUpClient(t, server, "ada@example.com")

	created, err := c.CreateNote(ctx, notes.NoteInput{Title: "Trip", Content: "pack", Tags: []string{"travel", "todo"}})
	require.NoError(t, err)

	updated, err := c.UpdateNote(ctx, created.ID, notes.NoteUpdate{Content: notes.StringPtr("pack socks")})
	require.NoError(t, err)
	assert.Equal(t, "Trip", updated.Title)
	assert.Equal(t, []string{"travel", "todo"}, updated.Tags)

	updated, err = c.UpdateNote(ctx, created.ID, notes.NoteUpdate{Tags: notes.TagsPtr([]string{})})
	require.NoError(t, err)
	assert.Empty(t, updated.Tags)
	assert.Equal(t, "pack socks", updated.Content)
}

func TestCreateNote_EmptyTitleIssuesNoRequest(t *testing.T) {
	server := startServer(t)
	ctx := context.Background()
	c := signedUpClient(t, server, "ada@example.com")

	before := server.Requests()
	_, err := c.CreateNote(ctx, notes.NoteInput{Title: "   ", Content: "body"})
	assert.ErrorIs(t, err, notes.ErrEmptyTitle)
	assert.ErrorIs(t, err, notes.ErrValidation)

	_, err = c.UpdateNote(ctx, "some-id", notes.NoteUpdate{Title: notes.StringPtr("")})
	assert.ErrorIs(t, err, notes.ErrValidation)
	assert.Equal(t, before, server.Requests())
}

func TestSignOut_BlocksOperationsLocally(t *testing.T) {
	server := startServer(t)
	ctx := context.Background()
	c := signedUpClient(t, server, "ada@example.com")
	token := c.Session().AccessToken

	require.NoError(t, c.SignOut(ctx))
	assert.False(t, c.HasSession())

	before := server.Requests()
	_, err := c.ListNotes(ctx)
	assert.ErrorIs(t, err, notes.ErrUnauthenticated)
	_, err = c.GetNote(ctx, "any")
	assert.ErrorIs(t, err, notes.ErrUnauthenticated)
	_, err = c.CreateNote(ctx, notes.NoteInput{Title: "t"})
	assert.ErrorIs(t, err, notes.ErrUnauthenticated)
	_, err = c.UpdateNote(ctx, "any", notes.NoteUpdate{Content: notes.StringPtr("x")})
	assert.ErrorIs(t, err, notes.ErrUnauthenticated)
	assert.ErrorIs(t, c.DeleteNote(ctx, "any"), notes.ErrUnauthenticated)

	// Missing session is reported ahead of invalid input.
	_, err = c.CreateNote(ctx, notes.NoteInput{Title: ""})
	assert.ErrorIs(t, err, notes.ErrUnauthenticated)
	_, err = c.UpdateNote(ctx, "any", notes.NoteUpdate{Title: notes.StringPtr("")})
	assert.ErrorIs(t, err, notes.ErrUnauthenticated)
	_, err = c.GetNote(ctx, "")
	assert.ErrorIs(t, err, notes.ErrUnauthenticated)
	assert.False(t, c.CheckSession(ctx))
	assert.Equal(t, before, server.Requests(), "no request reaches the API without a session")

	// The revoked token is rejected by the API as well.
	stale := client.NewClient(server.URL, client.WithSessionStore(storeWith(&notes.SessionToken{AccessToken: token})))
	_, err = stale.ListNotes(ctx)
	assert.ErrorIs(t, err, notes.ErrUnauthenticated)

	// Signing out twice is fine.
	assert.NoError(t, c.SignOut(ctx))
}

func TestDeleteNote_Idempotent(t *testing.T) {
	server := startServer(t)
	ctx := context.Background()
	c := signedUpClient(t, server, "ada@example.com")

	created, err := c.CreateNote(ctx, notes.NoteInput{Title: "Temp"})
	require.NoError(t, err)

	assert.NoError(t, c.DeleteNote(ctx, created.ID))
	assert.NoError(t, c.DeleteNote(ctx, created.ID))

	_, err = c.GetNote(ctx, created.ID)
	assert.ErrorIs(t, err, notes.ErrNotFound)
}

func TestConcurrentCreates_ProduceDistinctNotes(t *testing.T) {
	server := startServer(t)
	ctx := context.Background()
	c := signedUpClient(t, server, "ada@example.com")

	var wg sync.WaitGroup
	ids := make([]string, 2)
	errs := make([]error, 2)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			note, err := c.CreateNote(ctx, notes.NoteInput{Title: "Same", Content: "same"})
			errs[i] = err
			if err == nil {
				ids[i] = note.ID
			}
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.NotEqual(t, ids[0], ids[1])

	list, err := c.ListNotes(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestNotesAreIsolatedBetweenPrincipals(t *testing.T) {
	server := startServer(t)
	ctx := context.Background()
	ada := signedUpClient(t, server, "ada@example.com")
	bob := signedUpClient(t, server, "bob@example.com")

	note, err := ada.CreateNote(ctx, notes.NoteInput{Title: "Private", Content: "secret"})
	require.NoError(t, err)

	list, err := bob.ListNotes(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = bob.GetNote(ctx, note.ID)
	assert.ErrorIs(t, err, notes.ErrNotFound)

	_, err = bob.UpdateNote(ctx, note.ID, notes.NoteUpdate{Title: notes.StringPtr("Hijacked")})
	assert.ErrorIs(t, err, notes.ErrNotFound)

	assert.NoError(t, bob.DeleteNote(ctx, note.ID))

	got, err := ada.GetNote(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, "Private", got.Title)
	assert.Equal(t, "secret", got.Content)
}

func TestNoteContent(t *testing.T) {
	server := startServer(t)
	ctx := context.Background()
	c := signedUpClient(t, server, "ada@example.com")

	note, err := c.CreateNote(ctx, notes.NoteInput{Title: "Doc", Content: "old"})
	require.NoError(t, err)

	require.NoError(t, c.SetNoteContent(ctx, note.ID, "# Heading\n\nbody"))

	raw, err := c.GetNoteContent(ctx, note.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "# Heading\n\nbody", raw)

	html, err := c.GetNoteContent(ctx, note.ID, "html")
	require.NoError(t, err)
	assert.Contains(t, html, "<h1>Heading</h1>")

	require.NoError(t, c.SetNoteContent(ctx, note.ID, ""))
	got, err := c.GetNote(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, "", got.Content)
	assert.Equal(t, "Doc", got.Title)
}

func TestFileSessionStore_PersistsAcrossClients(t *testing.T) {
	server := startServer(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "session.json")

	first := client.NewClient(server.URL, client.WithSessionStore(client.NewFileSessionStore(path)))
	_, err := first.SignUp(ctx, "ada@example.com", testPassword)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	second := client.NewClient(server.URL, client.WithSessionStore(client.NewFileSessionStore(path)))
	assert.True(t, second.CheckSession(ctx))

	require.NoError(t, second.SignOut(ctx))
	_, err = os.Stat(path)
	assert.ErrorIs(t, err, os.ErrNotExist)

	third := client.NewClient(server.URL, client.WithSessionStore(client.NewFileSessionStore(path)))
	assert.False(t, third.HasSession())
}

func storeWith(session *notes.SessionToken) client.SessionStore {
	store := client.NewMemorySessionStore()
	store.Save(session)
	return store
}
