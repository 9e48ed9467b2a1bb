package recalc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Controller wires the HTTP surface to the services
type Controller struct {
	Debug  bool
	Logger Logger
	Repo   RepositoryManager
	Auther *Auther
	Claims *ClaimService
	Tokens TokenService
	Config Config
}

// ControllerOption configures a Controller
type ControllerOption func(*Controller) *Controller

// WithControllerDebug enables request payload dumps
func WithControllerDebug(debug bool) ControllerOption {
	return func(c *Controller) *Controller {
		c.Debug = debug
		return c
	}
}

// WithControllerLogger sets the logger
func WithControllerLogger(logger Logger) ControllerOption {
	return func(c *Controller) *Controller {
		c.Logger = logger
		return c
	}
}

// NewController creates a new Controller instance
func NewController(cfg Config, repo RepositoryManager, auther *Auther, claims *ClaimService, tokens TokenService, opts ...ControllerOption) *Controller {
	c := &Controller{
		Logger: defLogger{},
		Config: cfg,
		Repo:   repo,
		Auther: auther,
		Claims: claims,
		Tokens: tokens,
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in controller...")
	}

	if c.Auther == nil {
		panic("Missing Auther in controller...")
	}

	if c.Claims == nil {
		panic("Missing ClaimService in controller...")
	}

	return c
}

// ErrorHandler is the fiber app level error handler. Rich errors carry
// their HTTP status in Code; anything else is a 500.
func (a *Controller) ErrorHandler(c *fiber.Ctx, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	status := richErr.Code
	if status == 0 {
		status = fiber.StatusInternalServerError
	}

	if status >= fiber.StatusInternalServerError {
		a.Logger.Error("request failed: %s %s", richErr.Message, print.MaybePrettyJSON(richErr.Metadata))
	} else {
		a.Logger.Debug("request rejected: %s", richErr.Message)
	}

	body := fiber.Map{
		"status":  "error",
		"message": richErr.Message,
	}

	if richErr.TextCode != "" {
		body["code"] = richErr.TextCode
	}

	if richErr.Category == errors.CategoryValidation && richErr.Source != nil {
		body["details"] = richErr.Source.Error()
	}

	return c.Status(status).JSON(body)
}

// RegisterRoutes mounts every route on the app
func (a *Controller) RegisterRoutes(app *fiber.App) {
	session := SessionMiddleware(a.Tokens, a.Repo.Users(), a.Logger)

	app.Get("/ping", a.Ping)

	auth := app.Group("/auth")
	auth.Post("/register", a.Register)
	auth.Post("/login", a.Login)
	auth.Get("/verifyemail/:code", a.VerifyEmail)
	auth.Get("/logout", session, a.Logout)

	users := app.Group("/users")
	users.Get("/count", a.UserCount)
	users.Get("/me", session, a.Me)
	users.Get("/startswith", session, RequireRole(RoleManager), a.UsersStartingWith)
	users.Get("/make_manager/:id", session, RequireRole(RoleAdmin), a.MakeManager)

	categories := app.Group("/categories", session)
	categories.Get("/list", a.ListCategories)
	categories.Post("/create", RequireRole(RoleAdmin), a.CreateCategory)
	categories.Patch("/update/:id", RequireRole(RoleAdmin), a.UpdateCategory)
	categories.Delete("/delete/:id", RequireRole(RoleAdmin), a.DeleteCategory)

	claims := app.Group("/claims", session)
	claims.Post("/estimate_item", a.EstimateItem)
	claims.Post("/create", a.CreateClaim)
	claims.Get("/my", a.MyClaims)
	claims.Get("/pending", RequireRole(RoleManager), a.PendingClaims)
	claims.Post("/process/:id", RequireRole(RoleManager), a.ProcessClaim)
}

// Ping is the liveness endpoint
func (a *Controller) Ping(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "success",
		"message": "pong",
	})
}

// Register creates a new unverified account
func (a *Controller) Register(c *fiber.Ctx) error {
	form := SignupForm{}
	if err := c.BodyParser(&form); err != nil {
		return ValidationError(err)
	}

	if a.Debug {
		fmt.Println(print.MaybePrettyJSON(form))
	}

	user, err := a.Auther.Register(c.UserContext(), form)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"status": "success",
		"user":   user,
	})
}

// Login verifies credentials and installs the session cookie
func (a *Controller) Login(c *fiber.Ctx) error {
	form := LoginForm{}
	if err := c.BodyParser(&form); err != nil {
		return ValidationError(err)
	}

	user, token, err := a.Auther.Login(c.UserContext(), form)
	if err != nil {
		return err
	}

	c.Cookie(&fiber.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(a.Config.TokenLifetime),
		HTTPOnly: true,
		Secure:   true,
		SameSite: fiber.CookieSameSiteNoneMode,
	})

	return c.JSON(fiber.Map{
		"status": "success",
		"token":  token,
		"user":   user,
	})
}

// Logout clears the session cookie. The token itself stays valid until
// it expires; there is no server side revocation.
func (a *Controller) Logout(c *fiber.Ctx) error {
	c.Cookie(&fiber.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Now().Add(-time.Hour),
		HTTPOnly: true,
		Secure:   true,
		SameSite: fiber.CookieSameSiteNoneMode,
	})

	return c.JSON(fiber.Map{
		"status": "success",
	})
}

// VerifyEmail consumes a verification code from the mailed link
func (a *Controller) VerifyEmail(c *fiber.Ctx) error {
	code := c.Params("code")

	if err := a.Auther.VerifyEmail(c.UserContext(), code); err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"status":  "success",
		"message": "account verified",
	})
}

/// UserCount returns the number of registered users. Public on purpose:
// the client uses it to show the first-run hint before any account
// exists.
func (a *Controller) UserCount(c *fiber.Ctx) error {
	count, err := a.Repo.Users().CountAll(c.UserContext())
	if err != nil {
		return StorageError(err, "failed to count users")
	}

	return c.JSON(fiber.Map{
		"status": "success",
		"count":  count,
	})
}

// Me returns the authenticated principal
func (a *Controller) Me(c *fiber.Ctx) error {
	user, ok := UserFromContext(c)
	if !ok {
		return ErrUnauthenticated
	}

	return c.JSON(fiber.Map{
		"status": "success",
		"user":   user,
	})
}

// UsersStartingWith lists users whose username starts with the given
// prefix, used by the claim review UI to find people.
func (a *Controller) UsersStartingWith(c *fiber.Ctx) error {
	prefix := strings.TrimSpace(c.Query("start"))

	records, err := a.Repo.Users().ListByPrefix(c.UserContext(), prefix, 50)
	if err != nil {
		return StorageError(err, "failed to list users")
	}

	return c.JSON(fiber.Map{
		"status": "success",
		"users":  records,
	})
}

// MakeManager elevates the target user to manager
func (a *Controller) MakeManager(c *fiber.Ctx) error {
	actor, ok := UserFromContext(c)
	if !ok {
		return ErrUnauthenticated
	}

	targetID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ValidationError(err)
	}

	target, err := a.Auther.MakeManager(c.UserContext(), actor, targetID)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"status": "success",
		"user":   target,
	})
}

// ListCategories returns all reimbursement categories
func (a *Controller) ListCategories(c *fiber.Ctx) error {
	records, err := a.Repo.Categories().ListAll(c.UserContext())
	if err != nil {
		return StorageError(err, "failed to list categories")
	}

	return c.JSON(fiber.Map{
		"status":     "success",
		"categories": records,
	})
}

// CreateCategory creates a new reimbursement category
func (a *Controller) CreateCategory(c *fiber.Ctx) error {
	form := CategoryForm{}
	if err := c.BodyParser(&form); err != nil {
		return ValidationError(err)
	}

	if err := form.Validate(); err != nil {
		return ValidationError(err)
	}

	record := &Category{
		ID:               uuid.New(),
		Name:             form.Name,
		Percentage:       form.Percentage,
		MaxReimbursement: form.MaxReimbursement,
	}

	created, err := a.Repo.Categories().Create(c.UserContext(), record)
	if err != nil {
		return StorageError(err, "failed to create category")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"status":   "success",
		"category": created,
	})
}

// UpdateCategory applies a partial update to a category. Existing items
// keep their stored reimbursement; the new rules only affect future
// claims.
func (a *Controller) UpdateCategory(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ValidationError(err)
	}

	form := CategoryUpdateForm{}
	if err := c.BodyParser(&form); err != nil {
		return ValidationError(err)
	}

	if err := form.Validate(); err != nil {
		return ValidationError(err)
	}

	var updated *Category
	err = a.Repo.RunInTx(c.UserContext(), nil, func(ctx context.Context, tx bun.Tx) error {
		updated, err = a.Repo.Categories().UpdatePartialTx(ctx, tx, id, form)
		return err
	})
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return NotFoundError("category", id.String())
		}
		return StorageError(err, "failed to update category")
	}

	return c.JSON(fiber.Map{
		"status":   "success",
		"category": updated,
	})
}

// DeleteCategory removes a category
func (a *Controller) DeleteCategory(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ValidationError(err)
	}

	err = a.Repo.RunInTx(c.UserContext(), nil, func(ctx context.Context, tx bun.Tx) error {
		return a.Repo.Categories().RemoveTx(ctx, tx, id)
	})
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return NotFoundError("category", id.String())
		}
		return StorageError(err, "failed to delete category")
	}

	return c.JSON(fiber.Map{
		"status": "success",
	})
}

// EstimateItem previews a single item reimbursement
func (a *Controller) EstimateItem(c *fiber.Ctx) error {
	form := EstimateForm{}
	if err := c.BodyParser(&form); err != nil {
		return ValidationError(err)
	}

	estimate, err := a.Claims.EstimateItem(c.UserContext(), form)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"status":   "success",
		"estimate": estimate,
	})
}

// CreateClaim creates a claim owned by the authenticated user
func (a *Controller) CreateClaim(c *fiber.Ctx) error {
	user, ok := UserFromContext(c)
	if !ok {
		return ErrUnauthenticated
	}

	form := ClaimForm{}
	if err := c.BodyParser(&form); err != nil {
		return ValidationError(err)
	}

	if a.Debug {
		fmt.Println(print.MaybePrettyJSON(form))
	}

	claim, err := a.Claims.CreateClaim(c.UserContext(), user, form)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"status": "success",
		"claim":  claim,
	})
}

// MyClaims lists the authenticated user's claims
func (a *Controller) MyClaims(c *fiber.Ctx) error {
	user, ok := UserFromContext(c)
	if !ok {
		return ErrUnauthenticated
	}

	records, err := a.Claims.ListMine(c.UserContext(), user)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"status": "success",
		"claims": records,
	})
}

// PendingClaims lists all claims awaiting a decision
func (a *Controller) PendingClaims(c *fiber.Ctx) error {
	records, err := a.Claims.ListPending(c.UserContext())
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"status": "success",
		"claims": records,
	})
}

// ProcessClaim accepts or rejects a pending claim
func (a *Controller) ProcessClaim(c *fiber.Ctx) error {
	actor, ok := UserFromContext(c)
	if !ok {
		return ErrUnauthenticated
	}

	claimID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ValidationError(err)
	}

	form := ProcessForm{}
	if err := c.BodyParser(&form); err != nil {
		return ValidationError(err)
	}

	if err := form.Validate(); err != nil {
		return ValidationError(err)
	}

	claim, err := a.Claims.ProcessClaim(c.UserContext(), actor, claimID, *form.Accept)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"status": "success",
		"claim":  claim,
	})
}
