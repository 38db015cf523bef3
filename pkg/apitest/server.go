package apitest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sre-norns/repose/pkg/api"
)

var (
	ErrInvalidAuthHeader = fmt.Errorf("invalid Authorization header")
	ErrInvalidToken      = fmt.Errorf("invalid bearer token")
)

const authBearerKey = "Bearer"

// RecordedRequest is a request received by the Server
type RecordedRequest struct {
	ID     string
	Method string
	Path   string
	Header http.Header
	Body   any
}

type route struct {
	status int
	body   any
}

// Server is an HTTP server replying with canned JSON responses, used to test
// the real transport end to end.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	routes   map[responseKey]route
	requests []RecordedRequest

	jwtSecret []byte
}

type ServerOption func(s *Server)

// RequireJWT makes the server reject requests without a bearer token signed with the secret
func RequireJWT(secret []byte) ServerOption {
	return func(s *Server) {
		s.jwtSecret = secret
	}
}

func NewServer(options ...ServerOption) *Server {
	s := &Server{
		routes: make(map[responseKey]route),
	}
	for _, option := range options {
		option(s)
	}

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(s.requestIdApi())
	if len(s.jwtSecret) > 0 {
		engine.Use(s.authBearerApi())
	}
	engine.NoRoute(s.serve)

	s.Server = httptest.NewServer(engine)
	return s
}

// Handle registers a canned response for the method and path
func (s *Server) Handle(method, path string, status int, body any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.routes[keyFor(method, path)] = route{status: status, body: body}
}

// Requests returns a copy of all requests received so far
func (s *Server) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]RecordedRequest, len(s.requests))
	copy(result, s.requests)
	return result
}

// IssueToken signs a short lived token accepted by a server created with RequireJWT
func IssueToken(secret []byte, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})

	return token.SignedString(secret)
}

func abortWithError(ctx *gin.Context, code int, errValue error) {
	ctx.AbortWithStatusJSON(code, api.NewErrorResponse(code, errValue))
}

func (s *Server) requestIdApi() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		requestId := ctx.GetHeader(api.RequestIdHeader)
		if requestId == "" {
			requestId = uuid.NewString()
		}

		ctx.Set(api.RequestIdHeader, requestId)
		ctx.Header(api.RequestIdHeader, requestId)
		ctx.Next()
	}
}

func extractAuthBearer(ctx *gin.Context) (string, error) {
	authorization := ctx.Request.Header.Get("Authorization")
	if authorization == "" {
		return "", ErrInvalidAuthHeader
	}

	// Split it into two parts - "Bearer" and token
	parts := strings.SplitN(authorization, " ", 2)
	if len(parts) != 2 || parts[0] != authBearerKey {
		return "", ErrInvalidAuthHeader
	}

	return parts[1], nil
}

func (s *Server) authBearerApi() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		tokenString, err := extractAuthBearer(ctx)
		if err != nil {
			abortWithError(ctx, http.StatusUnauthorized, err)
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
			return s.jwtSecret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			abortWithError(ctx, http.StatusUnauthorized, fmt.Errorf("%w: %v", ErrInvalidToken, err))
			return
		}

		ctx.Set(authBearerKey, token)
		ctx.Next()
	}
}

func (s *Server) serve(ctx *gin.Context) {
	var body any
	data, err := io.ReadAll(ctx.Request.Body)
	if err != nil {
		abortWithError(ctx, http.StatusBadRequest, err)
		return
	}
	if len(bytes.TrimSpace(data)) > 0 {
		decoder := json.NewDecoder(bytes.NewReader(data))
		decoder.UseNumber()
		if err := decoder.Decode(&body); err != nil {
			abortWithError(ctx, http.StatusBadRequest, err)
			return
		}
	}

	key := keyFor(ctx.Request.Method, ctx.Request.URL.Path)

	s.mu.Lock()
	s.requests = append(s.requests, RecordedRequest{
		ID:     ctx.GetString(api.RequestIdHeader),
		Method: key.method,
		Path:   key.endpoint,
		Header: ctx.Request.Header.Clone(),
		Body:   body,
	})
	r, ok := s.routes[key]
	s.mu.Unlock()

	if !ok {
		abortWithError(ctx, http.StatusNotFound, fmt.Errorf("no route for %v %v", key.method, key.endpoint))
		return
	}

	if r.body == nil {
		ctx.Status(r.status)
		return
	}

	ctx.JSON(r.status, r.body)
}
