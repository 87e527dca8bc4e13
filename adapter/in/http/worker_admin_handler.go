package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/denwilliams/gmail-triage-assistant/core/domain"
	"github.com/denwilliams/gmail-triage-assistant/core/port/in"
	"github.com/denwilliams/gmail-triage-assistant/core/port/out"
	"github.com/denwilliams/gmail-triage-assistant/pkg/apperr"
	"github.com/denwilliams/gmail-triage-assistant/pkg/metrics"
	"github.com/denwilliams/gmail-triage-assistant/pkg/response"
)

// AdminHandler exposes inspection and manual triggers over the admin API.
// Builds, wrapups and polls are queued rather than run in the request.
type AdminHandler struct {
	triage    in.TriageService
	memory    in.MemoryService
	wrapup    in.WrapupService
	publisher out.JobPublisher
}

func NewAdminHandler(triage in.TriageService, memory in.MemoryService, wrapup in.WrapupService, publisher out.JobPublisher) *AdminHandler {
	return &AdminHandler{
		triage:    triage,
		memory:    memory,
		wrapup:    wrapup,
		publisher: publisher,
	}
}

func (h *AdminHandler) Register(router fiber.Router) {
	router.Put("/emails/:account/:message/feedback", h.SetFeedback)

	accounts := router.Group("/accounts/:account")
	accounts.Get("/emails", h.ListEmails)
	accounts.Post("/poll", h.Poll)
	accounts.Get("/memories", h.ListMemories)
	accounts.Post("/memories/:tier/build", h.BuildMemory)
	accounts.Get("/wrapups", h.ListWrapups)
	accounts.Post("/wrapups/:kind", h.GenerateWrapup)

	router.Get("/metrics", h.Metrics)
}

type feedbackRequest struct {
	Feedback string `json:"feedback"`
}

func (h *AdminHandler) SetFeedback(c *fiber.Ctx) error {
	accountID, err := accountParam(c)
	if err != nil {
		return err
	}
	messageID := c.Params("message")
	if messageID == "" {
		return apperr.InvalidInput("message", "required")
	}

	var req feedbackRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid request body")
	}
	feedback := strings.TrimSpace(req.Feedback)
	if len(feedback) > 2000 {
		return apperr.InvalidInput("feedback", "at most 2000 characters")
	}

	if err := h.triage.SetFeedback(c.UserContext(), accountID, messageID, feedback); err != nil {
		return err
	}
	return response.OK(c, fiber.Map{"message_id": messageID, "feedback": feedback})
}

func (h *AdminHandler) ListEmails(c *fiber.Ctx) error {
	accountID, err := accountParam(c)
	if err != nil {
		return err
	}
	page := response.GetPagination(c, 50, 200)

	msgs, err := h.triage.ListProcessed(c.UserContext(), accountID, page.Limit, page.Offset)
	if err != nil {
		return err
	}
	return response.OKWithMeta(c, msgs, &response.Meta{
		Limit:   page.Limit,
		Offset:  page.Offset,
		Count:   len(msgs),
		HasMore: len(msgs) == page.Limit,
	})
}

func (h *AdminHandler) Poll(c *fiber.Ctx) error {
	accountID, err := accountParam(c)
	if err != nil {
		return err
	}
	if err := h.publisher.PublishPoll(c.UserContext(), accountID, 0); err != nil {
		return apperr.ExternalError("queue", err)
	}
	return response.Accepted(c, fiber.Map{"account_id": accountID, "job": "account.poll"})
}

func (h *AdminHandler) ListMemories(c *fiber.Ctx) error {
	accountID, err := accountParam(c)
	if err != nil {
		return err
	}
	tier := domain.TierDaily
	if q := c.Query("tier"); q != "" {
		if tier, err = domain.ParseTier(q); err != nil {
			return apperr.InvalidInput("tier", err.Error())
		}
	}

	ms, err := h.memory.List(c.UserContext(), accountID, tier, c.QueryInt("limit", 20))
	if err != nil {
		return err
	}
	return response.OKWithMeta(c, ms, &response.Meta{Count: len(ms)})
}

func (h *AdminHandler) BuildMemory(c *fiber.Ctx) error {
	accountID, err := accountParam(c)
	if err != nil {
		return err
	}
	tier, err := domain.ParseTier(c.Params("tier"))
	if err != nil {
		return apperr.InvalidInput("tier", err.Error())
	}
	if err := h.publisher.PublishMemoryBuild(c.UserContext(), accountID, tier); err != nil {
		return apperr.ExternalError("queue", err)
	}
	return response.Accepted(c, fiber.Map{"account_id": accountID, "job": "memory.build", "tier": tier})
}

func (h *AdminHandler) ListWrapups(c *fiber.Ctx) error {
	accountID, err := accountParam(c)
	if err != nil {
		return err
	}
	reports, err := h.wrapup.ListRecent(c.UserContext(), accountID, c.QueryInt("limit", 10))
	if err != nil {
		return err
	}
	return response.OKWithMeta(c, reports, &response.Meta{Count: len(reports)})
}

func (h *AdminHandler) GenerateWrapup(c *fiber.Ctx) error {
	accountID, err := accountParam(c)
	if err != nil {
		return err
	}
	kind, err := domain.ParseWrapupKind(c.Params("kind"))
	if err != nil {
		return apperr.InvalidInput("kind", err.Error())
	}
	if err := h.publisher.PublishWrapup(c.UserContext(), accountID, kind); err != nil {
		return apperr.ExternalError("queue", err)
	}
	return response.Accepted(c, fiber.Map{"account_id": accountID, "job": "wrapup.generate", "kind": kind})
}

func (h *AdminHandler) Metrics(c *fiber.Ctx) error {
	return response.OK(c, metrics.Global().Snapshot())
}
