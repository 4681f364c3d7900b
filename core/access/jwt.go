package access

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/sensorhub/core/logger"
)

// AccountResolver looks up the catalogue account for an authenticated
// subject. It returns nil without error when the subject has no account.
type AccountResolver interface {
	AccountBySubject(ctx context.Context, subject string) (*User, error)
}

// JwtMiddlewareBuilder is a helper builder for the JWT middleware
type JwtMiddlewareBuilder struct {
	// PublicKeyDownloadURL is the download url for public keys. In case of google, this would be
	//  "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"
	PublicKeyDownloadURL string
	// Issuer is the accepted issuer for the token
	Issuer string
	// Accounts resolves authenticated subjects to catalogue users
	Accounts AccountResolver
}

// userCache caches resolved users per bearer token, so repeated requests
// with the same token do not hit the database every time.
type userCache struct {
	mutex sync.RWMutex
	cache map[string]*User
}

func (c *userCache) read(token string) (*User, bool) {
	c.mutex.RLock()
	user, ok := c.cache[token]
	c.mutex.RUnlock()
	return user, ok
}

func (c *userCache) write(token string, user *User) {
	c.mutex.Lock()
	c.cache[token] = user
	c.mutex.Unlock()
}

// NewJwtMiddleware returns a middleware handler to validate JWT bearer
// token.
//
// Java-Web-Token (JWT) are accepted as "Authorization: Bearer" header or
// as "Sensorhub-JWT"-cookie.
//
// The subject of an authenticated request is a combination of the token
// issuer with the user's email, separated by the pipe symbol '|'. Example:
//
//	"https://securetoken.google.com/sensorhub|test@example.com"
//
// The middleware resolves the subject to a catalogue user via the
// account resolver. Requests without token, and requests whose subject
// has no account, proceed anonymously. A token that is present but
// invalid terminates the request with http.StatusUnauthorized.
func NewJwtMiddleware(jmb *JwtMiddlewareBuilder) mux.MiddlewareFunc {

	if jmb.Accounts == nil {
		panic("account resolver is missing")
	}

	res, err := http.Get(jmb.PublicKeyDownloadURL)
	if err != nil {
		panic(fmt.Errorf("cannot download public keys: %s", err))
	}
	defer res.Body.Close()
	var wellKnownCertificates map[string]string
	decoder := json.NewDecoder(res.Body)
	err = decoder.Decode(&wellKnownCertificates)
	if err != nil {
		panic(err)
	}

	rlog := logger.Default()

	wellKnownKeys := map[string]interface{}{}
	for kid, cert := range wellKnownCertificates {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cert))
		if err != nil {
			rlog.Errorln("certificate error:", err)
		} else {
			wellKnownKeys[kid] = key
		}
	}

	jwksLookup := func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		key, ok := wellKnownKeys[kid]
		if ok {
			return key, nil
		}
		rlog.Warningf("have %d well known keys, but not this one", len(wellKnownKeys))
		return nil, errors.New("cannot verify token")
	}

	cache := &userCache{cache: make(map[string]*User)}

	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if UserFromContext(r.Context()) != nil { // already authenticated?
				h.ServeHTTP(w, r)
				return
			}

			tokenString := ""
			bearer := r.Header.Get("Authorization")
			if len(bearer) > 0 && bearer != "null" {
				if len(bearer) >= 8 && strings.ToLower(bearer[:7]) == "bearer " {
					tokenString = bearer[7:]
				} else {
					tokenString = bearer
				}
			} else if cookie, _ := r.Cookie("Sensorhub-JWT"); cookie != nil {
				tokenString = cookie.Value
			}
			if len(tokenString) == 0 {
				h.ServeHTTP(w, r) // no token no auth, moving on
				return
			}

			claims := struct {
				EMail string `json:"email"`
				jwt.RegisteredClaims
			}{}
			token, err := jwt.ParseWithClaims(tokenString, &claims, jwksLookup)
			if err != nil || !token.Valid || claims.Issuer != jmb.Issuer {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			// subject is a combination of issuer and email
			subject := claims.Issuer + "|" + claims.EMail
			ctx, rlog := logger.ContextWithLoggerIdentity(r.Context(), subject)

			// we cache by tokenString, and not by subject, so the frontend
			// can enforce a new database lookup with a new token
			user, ok := cache.read(tokenString)
			if !ok {
				user, err = jmb.Accounts.AccountBySubject(ctx, subject)
				if err != nil {
					rlog.WithError(err).Errorln("cannot resolve account for", subject)
					http.Error(w, "cannot resolve account", http.StatusInternalServerError)
					return
				}
				cache.write(tokenString, user)
			}
			if user != nil {
				ctx = ContextWithUser(ctx, user)
			}
			h.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
