package auth

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/embedops/flashgate/pkg/apiresponses"
	"github.com/embedops/flashgate/pkg/metrics"
	"github.com/embedops/flashgate/pkg/ratelimit"
)

const minPasswordLen = 8

// dummyHash keeps the bcrypt cost of a login against an unknown email in the
// same ballpark as one against a known email.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("flashgate-dummy"), bcrypt.DefaultCost)

// Controller exposes register/login/logout/me. Login attempts pass two
// independent throttles: the fixed-window per-IP limiter and the per-account
// credential throttle; either denying rejects the attempt with 429.
type Controller struct {
	log      *zap.SugaredLogger
	users    Repository
	issuer   *TokenIssuer
	limiter  *ratelimit.FixedWindowLimiter
	throttle *ratelimit.CredentialThrottle
}

func NewController(
	log *zap.SugaredLogger,
	users Repository,
	issuer *TokenIssuer,
	limiter *ratelimit.FixedWindowLimiter,
	throttle *ratelimit.CredentialThrottle,
) *Controller {
	return &Controller{
		log:      log,
		users:    users,
		issuer:   issuer,
		limiter:  limiter,
		throttle: throttle,
	}
}

func (Controller) BasePath() string {
	return ""
}

func (ct *Controller) Register(rg *gin.RouterGroup) error {
	rg.POST("/register", ct.limiter.Middleware("register"), ct.handleRegister)
	rg.POST("/login", ct.limiter.Middleware("login"), ct.handleLogin)
	rg.POST("/logout", ct.issuer.Middleware(), ct.handleLogout)
	rg.GET("/me", ct.issuer.Middleware(), ct.handleMe)

	return nil
}

// Handlers is empty: the credential endpoints must stay reachable without a
// token, so the gate is applied per-route in Register instead.
func (Controller) Handlers() []gin.HandlerFunc {
	return nil
}

type credentialsBody struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (ct *Controller) handleRegister(c *gin.Context) {
	var body credentialsBody
	if err := c.ShouldBindJSON(&body); err != nil {
		apiresponses.RespondBadRequest(c, "email and password are required")
		return
	}
	email := strings.ToLower(strings.TrimSpace(body.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		apiresponses.RespondBadRequest(c, "invalid email address")
		return
	}
	if len(body.Password) < minPasswordLen {
		apiresponses.RespondBadRequest(c, "password must be at least 8 characters")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
	if err != nil {
		apiresponses.RespondInternalError(c, "hash password", err, ct.log)
		return
	}

	user := &User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}
	if err := ct.users.Create(user); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			apiresponses.RespondConflict(c, "email already registered")
			return
		}
		apiresponses.RespondInternalError(c, "create user", err, ct.log)
		return
	}

	token, err := ct.issuer.Issue(user)
	if err != nil {
		apiresponses.RespondInternalError(c, "issue token", err, ct.log)
		return
	}

	ct.log.Infow("user registered", "email", email)
	apiresponses.RespondOK(c, gin.H{"ok": true, "id": user.ID, "token": token})
}

func (ct *Controller) handleLogin(c *gin.Context) {
	var body credentialsBody
	if err := c.ShouldBindJSON(&body); err != nil {
		apiresponses.RespondBadRequest(c, "email and password are required")
		return
	}
	email := strings.ToLower(strings.TrimSpace(body.Email))

	// The per-IP window was already consumed by the route middleware; the
	// credential throttle is the second, independent gate.
	if blocked, retryAfter := ct.throttle.Status(email); blocked {
		metrics.LoginLockouts.Inc()
		apiresponses.RespondTooManyRequests(c, int(retryAfter.Seconds())+1)
		return
	}

	user, err := ct.users.FindByEmail(email)
	if err != nil {
		// Burn a bcrypt comparison anyway so response timing does not
		// reveal whether the account exists.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(body.Password))
		ct.failLogin(c, email)
		return
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(body.Password)); err != nil {
		ct.failLogin(c, email)
		return
	}

	ct.throttle.Reset(email)

	token, err := ct.issuer.Issue(user)
	if err != nil {
		apiresponses.RespondInternalError(c, "issue token", err, ct.log)
		return
	}
	apiresponses.RespondOK(c, gin.H{"ok": true, "token": token})
}

func (ct *Controller) failLogin(c *gin.Context, email string) {
	ct.throttle.RecordFailure(email)
	metrics.LoginFailures.Inc()
	ct.log.Infow("failed login attempt", "email", email, "ip", c.ClientIP())
	c.JSON(http.StatusUnauthorized, apiresponses.APIError{
		Error: "invalid email or password",
		Code:  "UNAUTHORIZED",
	})
}

// handleLogout exists for API symmetry: tokens are stateless, so there is
// nothing to invalidate server-side. Clients drop the token.
func (ct *Controller) handleLogout(c *gin.Context) {
	apiresponses.RespondOK(c, gin.H{"ok": true})
}

func (ct *Controller) handleMe(c *gin.Context) {
	user, err := ct.users.FindByID(c.GetString(UserIDKey))
	if err != nil {
		apiresponses.RespondNotFound(c, "user", c.GetString(EmailKey))
		return
	}
	apiresponses.RespondOK(c, gin.H{"ok": true, "user": gin.H{"id": user.ID, "email": user.Email}})
}
