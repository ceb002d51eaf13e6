// handlers/competition_routes.go
package handlers

import (
	"bounty-arbitration-service/middleware"
	"bounty-arbitration-service/models"
	"bounty-arbitration-service/services"

	"github.com/gofiber/fiber/v2"
)

func SetupCompetitionRoutes(app *fiber.App, svc *services.ArbitrationService) {
	secured := app.Group("/bounties/:id/competition", middleware.ContributorContextMiddleware())

	secured.Post("/join", func(c *fiber.Ctx) error {
		req, err := parseContributorRequest(c)
		if err != nil {
			return respondError(c, err)
		}
		participation, err := svc.Join(c.UserContext(), c.Params("id"), req.ContributorID)
		if err != nil {
			return respondError(c, err)
		}
		return respondOK(c, participation)
	})

	secured.Post("/withdraw", func(c *fiber.Ctx) error {
		req, err := parseContributorRequest(c)
		if err != nil {
			return respondError(c, err)
		}
		participation, err := svc.Withdraw(c.UserContext(), c.Params("id"), req.ContributorID)
		if err != nil {
			return respondError(c, err)
		}
		return respondOK(c, participation)
	})

	secured.Get("/participants", func(c *fiber.Ctx) error {
		participants, err := svc.Participants(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		if participants == nil {
			participants = []models.CompetitionParticipation{}
		}
		return respondOK(c, participants)
	})
}
