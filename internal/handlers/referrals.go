package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/sol1corejz/invertgold/internal/logger"
	"github.com/sol1corejz/invertgold/internal/middleware"
	"github.com/sol1corejz/invertgold/internal/referral"
	"github.com/sol1corejz/invertgold/internal/storage"
	"go.uber.org/zap"
)

type TreeResponse struct {
	Root *referral.Node `json:"root"`
	referral.Aggregates
}

type InspectResponse struct {
	Kind        string         `json:"kind"`
	Root        *referral.Node `json:"root"`
	Members     []referral.Row `json:"members"`
	Unreachable []int64        `json:"unreachable"`
	Revisited   []int64        `json:"revisited"`
	referral.Aggregates
}

func loadTree(c *fiber.Ctx) (*referral.Tree, error) {
	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	session, _ := middleware.Session(c)

	payload, err := storage.Store.GetDownlinePayload(ctx, session.UserID)
	if err != nil {
		logger.Log.Error("Error getting referral records", zap.Int64("userID", session.UserID), zap.Error(err))
		return nil, err
	}

	tree := referral.BuildTree(referral.Decode(payload).Records, session.Identity())
	reportIntegrity(tree)
	return tree, nil
}

func reportIntegrity(tree *referral.Tree) {
	if tree == nil {
		return
	}
	if len(tree.Unreachable) > 0 {
		logger.Log.Warn("Referral records could not be placed",
			zap.Int64("rootID", tree.Root.ID),
			zap.Int64s("ids", tree.Unreachable))
	}
	if len(tree.Revisited) > 0 {
		logger.Log.Warn("Referral graph has cycles or duplicate ids",
			zap.Int64("rootID", tree.Root.ID),
			zap.Int64s("ids", tree.Revisited))
	}
}

func GetReferralTreeHandler(c *fiber.Ctx) error {
	tree, err := loadTree(c)
	if err != nil {
		return c.SendStatus(fiber.StatusInternalServerError)
	}
	if tree == nil {
		return c.SendStatus(fiber.StatusNoContent)
	}

	return c.Status(fiber.StatusOK).JSON(TreeResponse{
		Root:       tree.Root,
		Aggregates: tree.Aggregates(),
	})
}

func GetMembersHandler(c *fiber.Ctx) error {
	tree, err := loadTree(c)
	if err != nil {
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	rows := referral.FlattenToLevels(tree)
	if len(rows) == 0 {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.Status(fiber.StatusOK).JSON(rows)
}

// InspectReferralsHandler builds a tree from any referral payload the legacy
// backend produced, rooted at the ?root= username, email or id.
func InspectReferralsHandler(c *fiber.Ctx) error {
	in := referral.Decode(c.Body())

	root := c.Query("root")
	identity := referral.Identity{Username: root, Email: root}
	if id := c.QueryInt("root", 0); id != 0 {
		identity.ID = int64(id)
	}

	tree := referral.BuildTree(in.Records, identity)
	if tree == nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": "No usable referral records",
			"kind":  in.Kind.String(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(InspectResponse{
		Kind:        in.Kind.String(),
		Root:        tree.Root,
		Members:     referral.FlattenToLevels(tree),
		Unreachable: emptyIfNil(tree.Unreachable),
		Revisited:   emptyIfNil(tree.Revisited),
		Aggregates:  tree.Aggregates(),
	})
}

func emptyIfNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
