package account

import (
	"crypto/sha256"
	"time"

	"github.com/dgrijalva/jwt-go"

	"github.com/trezcool/gatheria/core"
)

var (
	salt                 = []byte("gatheria.core.account.verify_token")
	verificationAudience = "email-verification"
)

// verificationClaims are carried by email verification tokens.
// Email pins the token to the address it was sent to.
type verificationClaims struct {
	jwt.StandardClaims
	Email string `json:"email"`
}

func (svc *Service) signingKey() []byte {
	key := sha256.Sum256(append(append([]byte{}, salt...), svc.conf.SecretKey...))
	return key[:]
}

// makeVerificationToken signs a verification token for acc, valid for the configured TTL.
func (svc *Service) makeVerificationToken(acc Account) (string, time.Time, error) {
	now := core.NowFunc()
	expiresAt := now.Add(svc.conf.Auth.VerificationTTL)
	claims := verificationClaims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    svc.conf.AppName,
			Subject:   acc.ID,
			Audience:  verificationAudience,
			IssuedAt:  now.Unix(),
			ExpiresAt: expiresAt.Unix(),
		},
		Email: acc.Email,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(svc.signingKey())
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// parseVerificationToken checks the signature, expiry and audience of a verification token.
func (svc *Service) parseVerificationToken(token string) (verificationClaims, error) {
	var claims verificationClaims
	if token == "" {
		return claims, ErrInvalidToken
	}

	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return svc.signingKey(), nil
	})
	if err != nil {
		if vErr, ok := err.(*jwt.ValidationError); ok && vErr.Errors == jwt.ValidationErrorExpired {
			return claims, ErrExpiredToken
		}
		return claims, ErrInvalidToken
	}
	if !claims.VerifyAudience(verificationAudience, true) || claims.Subject == "" {
		return claims, ErrInvalidToken
	}
	return claims, nil
}
