package httpapi

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"weather-etl-pipeline/internal/audit"
	"weather-etl-pipeline/internal/pipeline"
	"weather-etl-pipeline/internal/store"
)

var validate = validator.New()

// RegisterRoutes wires the operational HTTP handlers into the Fiber app.
// All dataset endpoints are read-only; the reconciler stays the sole writer.
func RegisterRoutes(app *fiber.App, auditLog *audit.Log, datasets *store.DatasetStore, runner *pipeline.Runner) {
	v1 := app.Group("/api/v1")

	v1.Get("/runs", func(c *fiber.Ctx) error {
		limit, err := parseLimit(c, 50)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		entries, err := auditLog.Tail(limit)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to read audit log")
		}
		return c.JSON(fiber.Map{
			"entries": entries,
			"count":   len(entries),
		})
	})

	v1.Post("/runs", func(c *fiber.Ctx) error {
		result, err := runner.TryRun(c.Context())
		if err != nil {
			if errors.Is(err, pipeline.ErrRunInProgress) {
				return fiber.NewError(fiber.StatusConflict, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(result)
	})

	v1.Get("/datasets", func(c *fiber.Ctx) error {
		infos, err := datasets.List()
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to list datasets")
		}
		return c.JSON(fiber.Map{
			"datasets": infos,
			"count":    len(infos),
		})
	})

	v1.Get("/datasets/:city", func(c *fiber.Ctx) error {
		limit, err := parseLimit(c, 24)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		city := c.Params("city")
		rows, err := datasets.Tail(city, limit)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no dataset for requested city")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to read dataset")
		}
		return c.JSON(fiber.Map{
			"city":   city,
			"header": store.DatasetHeader,
			"rows":   rows,
			"count":  len(rows),
		})
	})
}

// limitQuery holds the validated limit query parameter.
type limitQuery struct {
	Limit int `validate:"gte=1,lte=1000"`
}

func parseLimit(c *fiber.Ctx, def int) (int, error) {
	q := limitQuery{Limit: def}
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, errors.New("limit must be an integer")
		}
		q.Limit = n
	}
	if err := validate.Struct(q); err != nil {
		return 0, err
	}
	return q.Limit, nil
}
