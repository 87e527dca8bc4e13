package http

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/denwilliams/gmail-triage-assistant/pkg/apperr"
)

// accountParam reads the :account path parameter.
func accountParam(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("account"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.InvalidInput("account", "must be a positive integer")
	}
	return id, nil
}
