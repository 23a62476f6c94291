package auth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"otp-agent/internal/backend"
	"otp-agent/internal/encryption"
	"otp-agent/internal/model"
)

var fastParams = encryption.Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1}

func newFileStore(t *testing.T, passphrase string, path string) *FileStore {
	t.Helper()
	sealer, err := encryption.NewSealer(passphrase, fastParams)
	require.NoError(t, err)
	return NewFileStore(path, sealer)
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token")
	store := newFileStore(t, "pass", path)
	ctx := context.Background()

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, ErrNoToken)

	token := model.Token{AccessToken: "abc", TokenType: "bearer", User: model.User{Email: "a@b.c"}}
	require.NoError(t, store.Save(ctx, token))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "abc")

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, token.AccessToken, loaded.AccessToken)
	assert.Equal(t, "a@b.c", loaded.User.Email)

	require.NoError(t, store.Clear(ctx))
	require.NoError(t, store.Clear(ctx))
	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestFileStoreWrongPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, newFileStore(t, "right", path).Save(context.Background(), model.Token{AccessToken: "abc"}))

	_, err := newFileStore(t, "wrong", path).Load(context.Background())
	assert.ErrorIs(t, err, ErrCorruptToken)
}

func TestTokenSource(t *testing.T) {
	store := NewMemoryStore()
	src := NewTokenSource(store)
	ctx := context.Background()

	_, err := src.AccessToken(ctx)
	assert.ErrorIs(t, err, ErrNoToken)

	require.NoError(t, store.Save(ctx, model.Token{}))
	_, err = src.AccessToken(ctx)
	assert.ErrorIs(t, err, ErrNoToken)

	require.NoError(t, store.Save(ctx, model.Token{AccessToken: "tok"}))
	tok, err := src.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok", tok)
}

type fakeBackend struct {
	token       model.Token
	loginErr    error
	user        model.User
	meErr       error
	registered  []string
	registerErr error
}

func (f *fakeBackend) Register(ctx context.Context, username, email, password string) (model.Token, error) {
	f.registered = append(f.registered, username+"|"+email+"|"+password)
	return f.token, f.registerErr
}

func (f *fakeBackend) Login(ctx context.Context, email, password string) (model.Token, error) {
	return f.token, f.loginErr
}

func (f *fakeBackend) Me(ctx context.Context) (model.User, error) {
	return f.user, f.meErr
}

func TestServiceLoginStoresToken(t *testing.T) {
	store := NewMemoryStore()
	fb := &fakeBackend{token: model.Token{AccessToken: "tok", User: model.User{Username: "asha"}}}
	svc := NewService(store, fb, zap.NewNop())
	fixed := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	user, err := svc.Login(context.Background(), " asha@example.com ", "pw")
	require.NoError(t, err)
	assert.Equal(t, "asha", user.Username)

	stored, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok", stored.AccessToken)
	assert.Equal(t, fixed, stored.IssuedAt)
}

func TestServiceLoginValidation(t *testing.T) {
	svc := NewService(NewMemoryStore(), &fakeBackend{}, zap.NewNop())
	_, err := svc.Login(context.Background(), "  ", "pw")
	assert.ErrorIs(t, err, ErrMissingCredentials)
	_, err = svc.Login(context.Background(), "a@b.c", "")
	assert.ErrorIs(t, err, ErrMissingCredentials)

	_, err = svc.Login(context.Background(), "not-an-email", "pw")
	assert.ErrorIs(t, err, model.ErrValidation)
	_, err = svc.Login(context.Background(), "<script>@x.io", "pw")
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestRegistrationValidate(t *testing.T) {
	valid := Registration{Username: "asha_01", Email: "asha@example.com", Password: "secret1", ConfirmPassword: "secret1"}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name    string
		mutate  func(r *Registration)
		field   string
		message string
	}{
		{"missing field", func(r *Registration) { r.ConfirmPassword = "" }, "form", "Please fill in all required fields."},
		{"short username", func(r *Registration) { r.Username = "as" }, "username", "Username must be between 3 and 20 characters."},
		{"long username", func(r *Registration) { r.Username = strings.Repeat("a", 21) }, "username", "Username must be between 3 and 20 characters."},
		{"username charset", func(r *Registration) { r.Username = "asha-01" }, "username", "Username can only contain letters, numbers, and underscores."},
		{"bad email", func(r *Registration) { r.Email = "asha@example" }, "email", "Please enter a valid email address."},
		{"markup in email", func(r *Registration) { r.Email = "a{{x}}@example.com" }, "email", "Please enter a valid email address."},
		{"short password", func(r *Registration) { r.Password, r.ConfirmPassword = "12345", "12345" }, "password", "Password must be at least 6 characters long."},
		{"mismatch", func(r *Registration) { r.ConfirmPassword = "secret2" }, "confirm_password", "Passwords do not match."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := valid
			tt.mutate(&reg)
			var verr *model.ValidationError
			require.ErrorAs(t, reg.Validate(), &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, tt.message, verr.Message)
		})
	}
}

func TestServiceRegister(t *testing.T) {
	store := NewMemoryStore()
	fb := &fakeBackend{token: model.Token{AccessToken: "signup-token", User: model.User{ID: "u1"}}}
	svc := NewService(store, fb, zap.NewNop())

	user, err := svc.Register(context.Background(), Registration{
		Username: " asha_01 ", Email: " asha@example.com", Password: "secret1", ConfirmPassword: "secret1",
	})
	require.NoError(t, err)
	assert.Equal(t, model.ID("u1"), user.ID)
	assert.Equal(t, "asha_01", user.Username)
	assert.Equal(t, "asha@example.com", user.Email)
	assert.Equal(t, []string{"asha_01|asha@example.com|secret1"}, fb.registered)

	_, err = store.Load(context.Background())
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestServiceRegisterInvalidMakesNoRequest(t *testing.T) {
	fb := &fakeBackend{}
	svc := NewService(NewMemoryStore(), fb, zap.NewNop())

	_, err := svc.Register(context.Background(), Registration{Username: "as", Email: "a@b.co", Password: "secret1", ConfirmPassword: "secret1"})
	assert.ErrorIs(t, err, model.ErrValidation)
	assert.Empty(t, fb.registered)

	fb.registerErr = &backend.APIError{StatusCode: 400, Message: "Username already taken"}
	_, err = svc.Register(context.Background(), Registration{Username: "asha", Email: "a@b.co", Password: "secret1", ConfirmPassword: "secret1"})
	assert.Equal(t, "Username already taken", backend.Message(err))
}

func TestServiceLoginFailureKeepsNothing(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, &fakeBackend{loginErr: &backend.APIError{StatusCode: 401, Message: "Invalid credentials"}}, zap.NewNop())

	_, err := svc.Login(context.Background(), "a@b.c", "pw")
	assert.Error(t, err)
	_, err = store.Load(context.Background())
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestServiceStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("no token", func(t *testing.T) {
		st, err := NewService(NewMemoryStore(), &fakeBackend{}, zap.NewNop()).Status(ctx)
		require.NoError(t, err)
		assert.False(t, st.LoggedIn)
	})

	t.Run("valid token", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Save(ctx, model.Token{AccessToken: "tok"}))
		st, err := NewService(store, &fakeBackend{user: model.User{Username: "asha"}}, zap.NewNop()).Status(ctx)
		require.NoError(t, err)
		assert.True(t, st.LoggedIn)
		assert.Equal(t, "asha", st.User.Username)
	})

	t.Run("rejected token is cleared", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Save(ctx, model.Token{AccessToken: "tok"}))
		fb := &fakeBackend{meErr: &backend.APIError{StatusCode: 401, Message: "expired"}}
		st, err := NewService(store, fb, zap.NewNop()).Status(ctx)
		require.NoError(t, err)
		assert.False(t, st.LoggedIn)
		_, err = store.Load(ctx)
		assert.ErrorIs(t, err, ErrNoToken)
	})

	t.Run("backend down", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Save(ctx, model.Token{AccessToken: "tok"}))
		fb := &fakeBackend{meErr: errors.Join(backend.ErrUnavailable, errors.New("refused"))}
		_, err := NewService(store, fb, zap.NewNop()).Status(ctx)
		assert.ErrorIs(t, err, backend.ErrUnavailable)
	})
}
