package auth

import (
	"strings"

	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/database"
	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/models"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

type CreateUserRequest struct {
	Name       string          `json:"name"`
	Email      string          `json:"email"`
	Password   string          `json:"password"`
	Role       models.UserRole `json:"role"`
	HourlyRate float64         `json:"hourly_rate"`
}

type UserResponse struct {
	ID         uint            `json:"id"`
	Name       string          `json:"name"`
	Email      string          `json:"email"`
	Role       models.UserRole `json:"role"`
	HourlyRate float64         `json:"hourly_rate"`
	IsActive   bool            `json:"is_active"`
}

func validRole(r models.UserRole) bool {
	switch r {
	case models.RoleAdmin, models.RoleManagement, models.RoleLead, models.RoleEmployee:
		return true
	}
	return false
}

// POST /api/admin/users
func CreateUserHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateUserRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		body.Email = strings.TrimSpace(strings.ToLower(body.Email))
		if body.Email == "" || body.Password == "" || body.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "name, email and password are required")
		}
		if !validRole(body.Role) {
			return fiber.NewError(fiber.StatusBadRequest, "invalid role")
		}
		if body.HourlyRate < 0 {
			return fiber.NewError(fiber.StatusBadRequest, "hourly_rate cannot be negative")
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not hash password")
		}

		user := models.User{
			Name:         body.Name,
			Email:        body.Email,
			PasswordHash: string(hash),
			Role:         body.Role,
			HourlyRate:   body.HourlyRate,
			IsActive:     true,
		}

		if err := database.DB.Create(&user).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not create user")
		}

		return c.Status(fiber.StatusCreated).JSON(UserResponse{
			ID:         user.ID,
			Name:       user.Name,
			Email:      user.Email,
			Role:       user.Role,
			HourlyRate: user.HourlyRate,
			IsActive:   user.IsActive,
		})
	}
}

// GET /api/users?role=employee
func ListUsersHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		q := database.DB.Model(&models.User{}).Where("is_active = ?", true)
		if role := c.Query("role"); role != "" {
			q = q.Where("role = ?", role)
		}

		var users []models.User
		if err := q.Order("name ASC").Find(&users).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not list users")
		}

		resp := make([]UserResponse, 0, len(users))
		for _, u := range users {
			resp = append(resp, UserResponse{
				ID:         u.ID,
				Name:       u.Name,
				Email:      u.Email,
				Role:       u.Role,
				HourlyRate: u.HourlyRate,
				IsActive:   u.IsActive,
			})
		}

		return c.JSON(resp)
	}
}
