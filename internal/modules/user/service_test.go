package user

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type memoryRepo struct {
	byEmail map[string]*User
	byID    map[string]*User
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{byEmail: make(map[string]*User), byID: make(map[string]*User)}
}

func (r *memoryRepo) CreateUser(ctx context.Context, u *User) error {
	if _, ok := r.byEmail[u.Email]; ok {
		return ErrEmailTaken
	}
	r.byEmail[u.Email] = u
	r.byID[u.ID.String()] = u
	return nil
}

func (r *memoryRepo) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	if u, ok := r.byEmail[email]; ok {
		return u, nil
	}
	return nil, ErrNotFound
}

func (r *memoryRepo) GetUserByID(ctx context.Context, id string) (*User, error) {
	if u, ok := r.byID[id]; ok {
		return u, nil
	}
	return nil, ErrNotFound
}

func TestRegisterUserHashesPasswordAndDefaultsRole(t *testing.T) {
	svc := NewService(newMemoryRepo())

	u, err := svc.RegisterUser(context.Background(), "a@example.com", "hunter22", "Ada", "L")
	require.NoError(t, err)

	assert.Equal(t, RoleCustomer, u.Role)
	assert.NotEqual(t, "hunter22", u.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("hunter22")))
}

func TestRegisterUserRequiresEmailAndPassword(t *testing.T) {
	svc := NewService(newMemoryRepo())

	_, err := svc.RegisterUser(context.Background(), "", "hunter22", "", "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.RegisterUser(context.Background(), "a@example.com", "", "", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRegisterUserDuplicateEmail(t *testing.T) {
	svc := NewService(newMemoryRepo())

	_, err := svc.RegisterUser(context.Background(), "a@example.com", "hunter22", "", "")
	require.NoError(t, err)
	_, err = svc.RegisterUser(context.Background(), "a@example.com", "other", "", "")
	assert.ErrorIs(t, err, ErrEmailTaken)
}
