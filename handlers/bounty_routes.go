// handlers/bounty_routes.go
package handlers

import (
	"errors"
	"log"
	"strconv"
	"strings"
	"time"

	"bounty-arbitration-service/middleware"
	"bounty-arbitration-service/models"
	"bounty-arbitration-service/services"
	"bounty-arbitration-service/store"

	"github.com/gofiber/fiber/v2"
)

type contributorRequest struct {
	ContributorID      string   `json:"contributorId"`
	LeaseDurationHours *float64 `json:"leaseDurationHours,omitempty"`
}

func SetupBountyRoutes(app *fiber.App, svc *services.ArbitrationService) {
	app.Get("/health", func(c *fiber.Ctx) error {
		if err := svc.Ping(c.UserContext()); err != nil {
			log.Printf("❌ [HEALTH] store ping failed: %v", err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"ok": false, "store": "unavailable"})
		}
		return c.JSON(fiber.Map{"ok": true, "store": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
	})

	// Identity is forwarded by the Gateway and trusted as-is
	secured := app.Group("/", middleware.ContributorContextMiddleware())

	secured.Get("/bounties", func(c *fiber.Ctx) error {
		limit, _ := strconv.Atoi(c.Query("limit", "0"))
		bounties, err := svc.ListBounties(c.UserContext(), store.BountyFilter{
			Status:        models.BountyStatus(c.Query("status")),
			ClaimingModel: models.ClaimingModel(c.Query("claimingModel")),
			Limit:         limit,
		})
		if err != nil {
			return respondError(c, err)
		}
		if bounties == nil {
			bounties = []models.Bounty{}
		}
		return respondOK(c, bounties)
	})

	secured.Get("/bounties/:id", func(c *fiber.Ctx) error {
		bounty, err := svc.GetBounty(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return respondOK(c, bounty)
	})

	secured.Post("/bounties/:id/claim", func(c *fiber.Ctx) error {
		req, err := parseContributorRequest(c)
		if err != nil {
			return respondError(c, err)
		}
		lease, err := leaseFromHours(req.LeaseDurationHours)
		if err != nil {
			return respondError(c, err)
		}
		bounty, err := svc.Claim(c.UserContext(), c.Params("id"), req.ContributorID, lease)
		if err != nil {
			return respondError(c, err)
		}
		return respondOK(c, bounty)
	})

	secured.Post("/bounties/:id/release", func(c *fiber.Ctx) error {
		req, err := parseContributorRequest(c)
		if err != nil {
			return respondError(c, err)
		}
		bounty, err := svc.Release(c.UserContext(), c.Params("id"), req.ContributorID)
		if err != nil {
			return respondError(c, err)
		}
		return respondOK(c, bounty)
	})

	secured.Post("/bounties/:id/complete", func(c *fiber.Ctx) error {
		req, err := parseContributorRequest(c)
		if err != nil {
			return respondError(c, err)
		}
		bounty, err := svc.Complete(c.UserContext(), c.Params("id"), req.ContributorID)
		if err != nil {
			return respondError(c, err)
		}
		return respondOK(c, bounty)
	})

	// Model-agnostic entry: claim or join depending on the bounty
	secured.Post("/bounties/:id/enter", func(c *fiber.Ctx) error {
		req, err := parseContributorRequest(c)
		if err != nil {
			return respondError(c, err)
		}
		lease, err := leaseFromHours(req.LeaseDurationHours)
		if err != nil {
			return respondError(c, err)
		}
		result, err := svc.Enter(c.UserContext(), services.EntryRequest{
			BountyID:      c.Params("id"),
			ContributorID: req.ContributorID,
			LeaseDuration: lease,
		})
		if err != nil {
			return respondError(c, err)
		}
		return respondOK(c, result)
	})

	// 🔒 Admin-only
	secured.Post("/bounties", middleware.RequireRole("admin"), func(c *fiber.Ctx) error {
		var req services.CreateBountyRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "code": services.KindValidation})
		}
		bounty, err := svc.CreateBounty(c.UserContext(), req)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": bounty})
	})

	secured.Post("/bounties/:id/cancel", middleware.RequireRole("admin"), func(c *fiber.Ctx) error {
		bounty, err := svc.Cancel(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return respondOK(c, bounty)
	})
}

// parseContributorRequest reads {contributorId} from the body, falling back to
// the Gateway-forwarded contributor. A missing id is a validation error.
func parseContributorRequest(c *fiber.Ctx) (contributorRequest, error) {
	var req contributorRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return req, &services.ArbitrationError{Kind: services.KindValidation, Message: "invalid JSON body"}
		}
	}
	req.ContributorID = strings.TrimSpace(req.ContributorID)
	if req.ContributorID == "" {
		req.ContributorID = middleware.ContributorID(c)
	}
	if req.ContributorID == "" {
		return req, &services.ArbitrationError{Kind: services.KindValidation, Message: "Missing contributorId"}
	}
	return req, nil
}

// leaseFromHours converts an optional leaseDurationHours. Absent means the
// service default; a value that does not come out to a positive duration is rejected.
func leaseFromHours(hours *float64) (time.Duration, error) {
	if hours == nil {
		return 0, nil
	}
	lease := time.Duration(*hours * float64(time.Hour))
	if *hours <= 0 || lease <= 0 {
		return 0, &services.ArbitrationError{Kind: services.KindValidation, Message: "leaseDurationHours must be positive"}
	}
	return lease, nil
}

func respondOK(c *fiber.Ctx, data interface{}) error {
	return c.JSON(fiber.Map{"success": true, "data": data})
}

func statusFor(kind services.ErrorKind) int {
	switch kind {
	case services.KindValidation, services.KindModelMismatch:
		return fiber.StatusBadRequest
	case services.KindNotFound:
		return fiber.StatusNotFound
	case services.KindConflict:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

func respondError(c *fiber.Ctx, err error) error {
	kind := services.KindOf(err)
	status := statusFor(kind)

	message := "Internal Server Error"
	var ae *services.ArbitrationError
	if kind != services.KindInternal && errors.As(err, &ae) && ae.Message != "" {
		message = ae.Message
	}
	if status == fiber.StatusInternalServerError {
		log.Printf("❌ [HTTP] %s %s failed: %v", c.Method(), c.Path(), err)
	}
	return c.Status(status).JSON(fiber.Map{"error": message, "code": kind})
}
