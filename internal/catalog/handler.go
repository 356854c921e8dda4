package catalog

import (
	"time"

	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/database"
	"github.com/Siva2k2k/ES-TM-Claude-sub001/internal/models"

	"github.com/gofiber/fiber/v2"
)

// Thin catalog plumbing: clients, projects and tasks exist so the billing
// engine has names, end dates and rate overrides to resolve against. The
// real project management surface lives elsewhere.

type CreateClientRequest struct {
	Name string `json:"name"`
}

type CreateProjectRequest struct {
	ClientID   uint     `json:"client_id"`
	Name       string   `json:"name"`
	StartDate  *string  `json:"start_date"` // YYYY-MM-DD
	EndDate    *string  `json:"end_date"`
	HourlyRate *float64 `json:"hourly_rate"`
}

type CreateTaskRequest struct {
	ProjectID  uint     `json:"project_id"`
	Name       string   `json:"name"`
	HourlyRate *float64 `json:"hourly_rate"`
}

func parseDatePtr(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// POST /api/admin/clients
func CreateClientHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateClientRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if body.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "name is required")
		}

		client := models.Client{Name: body.Name}
		if err := database.DB.Create(&client).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not create client")
		}

		return c.Status(fiber.StatusCreated).JSON(client)
	}
}

// GET /api/clients
func ListClientsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var clients []models.Client
		if err := database.DB.Order("name ASC").Find(&clients).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not list clients")
		}
		return c.JSON(clients)
	}
}

// POST /api/admin/projects
func CreateProjectHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateProjectRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if body.Name == "" || body.ClientID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "client_id and name are required")
		}

		var client models.Client
		if err := database.DB.First(&client, body.ClientID).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "client not found")
		}

		start, err := parseDatePtr(body.StartDate)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "start_date must be YYYY-MM-DD")
		}
		end, err := parseDatePtr(body.EndDate)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "end_date must be YYYY-MM-DD")
		}
		if start != nil && end != nil && end.Before(*start) {
			return fiber.NewError(fiber.StatusBadRequest, "end_date cannot be before start_date")
		}

		project := models.Project{
			ClientID:   body.ClientID,
			Name:       body.Name,
			StartDate:  start,
			EndDate:    end,
			HourlyRate: body.HourlyRate,
		}
		if err := database.DB.Create(&project).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not create project")
		}

		return c.Status(fiber.StatusCreated).JSON(project)
	}
}

// GET /api/projects?client_id=1
func ListProjectsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		q := database.DB.Model(&models.Project{})
		if cid := c.QueryInt("client_id"); cid > 0 {
			q = q.Where("client_id = ?", cid)
		}

		var projects []models.Project
		if err := q.Order("name ASC").Find(&projects).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not list projects")
		}
		return c.JSON(projects)
	}
}

// POST /api/admin/tasks
func CreateTaskHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateTaskRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if body.Name == "" || body.ProjectID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "project_id and name are required")
		}

		var project models.Project
		if err := database.DB.First(&project, body.ProjectID).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "project not found")
		}

		task := models.Task{
			ProjectID:  body.ProjectID,
			Name:       body.Name,
			HourlyRate: body.HourlyRate,
		}
		if err := database.DB.Create(&task).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not create task")
		}

		return c.Status(fiber.StatusCreated).JSON(task)
	}
}

// GET /api/tasks?project_id=1
func ListTasksHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		q := database.DB.Model(&models.Task{})
		if pid := c.QueryInt("project_id"); pid > 0 {
			q = q.Where("project_id = ?", pid)
		}

		var tasks []models.Task
		if err := q.Order("name ASC").Find(&tasks).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not list tasks")
		}
		return c.JSON(tasks)
	}
}
