package auth

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/drosic/taskman/internal/models"
)

// ErrInvalidToken covers every verification failure: bad signature, expiry,
// unknown user, or a token revoked out of the allow-list. Callers get no
// finer detail.
var ErrInvalidToken = errors.New("auth: invalid token")

// Claims carries the standard registered claims plus the owning user id.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
}

// UserStore is the slice of user persistence the issuer needs.
type UserStore interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	PushToken(ctx context.Context, id primitive.ObjectID, token string) error
	PullToken(ctx context.Context, id primitive.ObjectID, token string) error
	ClearTokens(ctx context.Context, id primitive.ObjectID) error
}

// Issuer creates and verifies session tokens. Verification is two
// independent checks in sequence: HS256 signature plus expiry first, then
// membership in the user's stored allow-list. Revocation is therefore a
// plain list mutation; the signature stays structurally valid.
type Issuer struct {
	users  UserStore
	secret []byte
	ttl    time.Duration
}

func NewIssuer(users UserStore, secret []byte, ttl time.Duration) *Issuer {
	return &Issuer{users: users, secret: secret, ttl: ttl}
}

// Issue signs a new token for the user and appends it to their allow-list.
func (i *Issuer) Issue(ctx context.Context, userID primitive.ObjectID) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(i.ttl)),
		},
		UserID: userID.Hex(),
	})
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", err
	}
	if err := i.users.PushToken(ctx, userID, signed); err != nil {
		return "", err
	}
	return signed, nil
}

// Verify checks the token and returns the user it belongs to.
func (i *Issuer) Verify(ctx context.Context, tokenString string) (*models.User, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	userID, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		return nil, ErrInvalidToken
	}
	user, err := i.users.GetByID(ctx, userID)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if !slices.Contains(user.Tokens, tokenString) {
		return nil, ErrInvalidToken
	}
	return user, nil
}

// RevokeOne removes exactly the matching token from the user's allow-list.
func (i *Issuer) RevokeOne(ctx context.Context, userID primitive.ObjectID, token string) error {
	return i.users.PullToken(ctx, userID, token)
}

// RevokeAll clears the user's allow-list, ending every active session.
func (i *Issuer) RevokeAll(ctx context.Context, userID primitive.ObjectID) error {
	return i.users.ClearTokens(ctx, userID)
}
