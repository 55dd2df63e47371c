package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/meinhoongagan/availability-engine/availability"
	"github.com/meinhoongagan/availability-engine/middleware"
	"github.com/meinhoongagan/availability-engine/models"
	"github.com/meinhoongagan/availability-engine/repository"
	"github.com/meinhoongagan/availability-engine/utils"
)

type RegisterInput struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type TokenResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// Register godoc
// @Summary Register a new user
// @Tags auth
// @Accept json
// @Produce json
// @Param user body RegisterInput true "User"
// @Success 201 {object} TokenResponse
// @Failure 400 {object} utils.ErrorResponse
// @Failure 409 {object} utils.ErrorResponse
// @Router /auth/register [post]
func (h *Handlers) Register(c *fiber.Ctx) error {
	var input RegisterInput
	if err := c.BodyParser(&input); err != nil {
		return badRequest(c, "Cannot parse JSON", err)
	}
	if verr := availability.ValidateStruct(input); verr.HasErrors() {
		return h.respondError(c, "Invalid registration", verr)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return h.respondError(c, "Failed to hash password", err)
	}
	user := models.User{Name: input.Name, Email: input.Email, Password: string(hashed)}
	if err := h.users.Create(c.UserContext(), &user); err != nil {
		return h.respondError(c, "Failed to create user", err)
	}

	return h.tokenResponse(c, fiber.StatusCreated, user)
}

// Login godoc
// @Summary Exchange credentials for a token
// @Tags auth
// @Accept json
// @Produce json
// @Param credentials body LoginInput true "Credentials"
// @Success 200 {object} TokenResponse
// @Failure 401 {object} utils.ErrorResponse
// @Router /auth/login [post]
func (h *Handlers) Login(c *fiber.Ctx) error {
	var input LoginInput
	if err := c.BodyParser(&input); err != nil {
		return badRequest(c, "Cannot parse JSON", err)
	}

	user, err := h.users.FindByEmail(c.UserContext(), input.Email)
	if errors.Is(err, repository.ErrUserNotFound) {
		return invalidCredentials(c)
	}
	if err != nil {
		return h.respondError(c, "Failed to load user", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(input.Password)) != nil {
		return invalidCredentials(c)
	}

	return h.tokenResponse(c, fiber.StatusOK, user)
}

// RefreshToken godoc
// @Summary Issue a fresh token for the caller
// @Tags auth
// @Produce json
// @Success 200 {object} TokenResponse
// @Router /auth/refresh [post]
func (h *Handlers) RefreshToken(c *fiber.Ctx) error {
	user, err := h.users.Get(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return h.respondError(c, "Failed to load user", err)
	}
	return h.tokenResponse(c, fiber.StatusOK, user)
}

// GetUserProfile godoc
// @Summary Get the authenticated user
// @Tags auth
// @Produce json
// @Success 200 {object} models.User
// @Router /auth/me [get]
func (h *Handlers) GetUserProfile(c *fiber.Ctx) error {
	return h.sendUser(c, middleware.UserID(c))
}

// GetUserByID godoc
// @Summary Get a user by ID
// @Tags auth
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} models.User
// @Failure 404 {object} utils.ErrorResponse
// @Router /auth/user/{id} [get]
func (h *Handlers) GetUserByID(c *fiber.Ctx) error {
	return h.sendUser(c, c.Params("id"))
}

func (h *Handlers) sendUser(c *fiber.Ctx, id string) error {
	user, err := h.users.Get(c.UserContext(), id)
	if err != nil {
		return h.respondError(c, "User not found", err)
	}
	user.Password = ""
	return c.JSON(user)
}

func (h *Handlers) tokenResponse(c *fiber.Ctx, status int, user models.User) error {
	token, err := middleware.IssueToken(h.secret, user.ID, h.tokenTTL, h.now())
	if err != nil {
		return h.respondError(c, "Failed to issue token", err)
	}
	user.Password = ""
	return c.Status(status).JSON(TokenResponse{Token: token, User: user})
}

func invalidCredentials(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(utils.ErrorResponse{
		Message: "Invalid credentials",
		Error:   "email or password is incorrect",
	})
}
